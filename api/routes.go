package api

import (
	"net/http"

	"trustlog/api/routegroups"
	"trustlog/core/rbac"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() http.Handler {
	h := s.newRouteHandlers()
	guards := routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
		RateLimit:         s.rateLimitMiddleware,
	}

	router := chi.NewRouter()
	router.Use(s.recoverMiddleware, s.loggingMiddleware, s.securityHeadersMiddleware)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed", "code": "method_not_allowed"})
	})
	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		routegroups.RegisterAuth(apiRouter, guards, h.auth)
		routegroups.RegisterConfig(apiRouter, guards, h.config)
		routegroups.RegisterLogs(apiRouter, guards, h.records)
		routegroups.RegisterAttachments(apiRouter, guards, h.attachments)
		routegroups.RegisterReports(apiRouter, guards, h.reports)
		routegroups.RegisterAudit(apiRouter, guards, h.audit)
	})
	return router
}
