package routegroups

import (
	"trustlog/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterLogs(apiRouter chi.Router, g Guards, recordsH *handlers.RecordsHandler) {
	apiRouter.Route("/logs", func(logsRouter chi.Router) {
		logsRouter.MethodFunc("GET", "/", g.SessionPerm("records.view", recordsH.List))
		logsRouter.MethodFunc("POST", "/", g.SessionPerm("records.manage", recordsH.Create))
		logsRouter.MethodFunc("GET", "/export", g.SessionPerm("records.view", recordsH.Export))
		logsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("records.view", recordsH.Get))
		logsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("records.manage", recordsH.Update))
		logsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("records.manage", recordsH.Delete))
		logsRouter.MethodFunc("GET", "/{id:[0-9]+}/attachments", g.SessionPerm("attachments.view", recordsH.Attachments))
	})
}

func RegisterAttachments(apiRouter chi.Router, g Guards, attH *handlers.AttachmentsHandler) {
	apiRouter.Route("/attachments", func(attRouter chi.Router) {
		attRouter.MethodFunc("GET", "/files/{storage_name}", g.SessionPerm("attachments.view", attH.Download))
		attRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("attachments.manage", attH.Delete))
	})
}

func RegisterReports(apiRouter chi.Router, g Guards, reportsH *handlers.ReportsHandler) {
	apiRouter.Route("/reports", func(reportsRouter chi.Router) {
		reportsRouter.MethodFunc("GET", "/summary", g.SessionPerm("reports.view", reportsH.Summary))
	})
}
