package routegroups

import (
	"trustlog/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterAuth(apiRouter chi.Router, g Guards, authH *handlers.AuthHandler) {
	apiRouter.Route("/auth", func(authRouter chi.Router) {
		authRouter.MethodFunc("POST", "/login", g.Throttled(authH.Login))
		authRouter.MethodFunc("POST", "/register", g.Throttled(authH.Register))
		authRouter.MethodFunc("POST", "/logout", g.WithSession(authH.Logout))
		authRouter.MethodFunc("GET", "/status", authH.Status)
	})
}

func RegisterConfig(apiRouter chi.Router, g Guards, cfgH *handlers.ConfigHandler) {
	apiRouter.Route("/config", func(configRouter chi.Router) {
		configRouter.MethodFunc("GET", "/allowed_extensions", g.SessionPerm("config.view", cfgH.AllowedExtensions))
		configRouter.MethodFunc("GET", "/categories", g.SessionPerm("config.view", cfgH.Categories))
	})
}

func RegisterAudit(apiRouter chi.Router, g Guards, audit *handlers.AuditHandler) {
	apiRouter.MethodFunc("GET", "/audit", g.SessionPerm("audit.view", audit.List))
}
