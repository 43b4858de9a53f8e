package api

import "trustlog/api/handlers"

type routeHandlers struct {
	auth        *handlers.AuthHandler
	config      *handlers.ConfigHandler
	records     *handlers.RecordsHandler
	attachments *handlers.AttachmentsHandler
	reports     *handlers.ReportsHandler
	audit       *handlers.AuditHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:        handlers.NewAuthHandler(s.cfg, s.authService, s.logger),
		config:      handlers.NewConfigHandler(s.files),
		records:     handlers.NewRecordsHandler(s.cfg, s.writer, s.engine, s.logger),
		attachments: handlers.NewAttachmentsHandler(s.files, s.writer, s.engine, s.logger),
		reports:     handlers.NewReportsHandler(s.engine, s.logger),
		audit:       handlers.NewAuditHandler(s.audits, s.logger),
	}
}
