package appbootstrap

import (
	"trustlog/api"
	"trustlog/config"
	"trustlog/core/attachments"
	"trustlog/core/auth"
	"trustlog/core/maintenance"
	"trustlog/core/rbac"
	"trustlog/core/records"
	"trustlog/core/store"
	"trustlog/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	recordsStore := store.NewRecordsStore(db)

	files, err := attachments.New(cfg.Attachments.StorageDir, cfg.Attachments.AllowedExtensions, logger.With("component", "attachments"))
	if err != nil {
		return nil, err
	}
	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	guard := auth.NewGuard(sessionManager, users)
	authService := auth.NewService(cfg, users, sessionManager, guard, audits, logger.With("component", "auth"))
	writer := records.NewWriter(recordsStore, files, audits, logger.With("component", "records"), cfg.EffectiveMaxUploadBytes())
	engine := records.NewEngine(recordsStore)
	scheduler := maintenance.NewScheduler(cfg.Maintenance, sessions, recordsStore, files, logger.With("component", "maintenance"))

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Audits:         audits,
			Files:          files,
			SessionManager: sessionManager,
			Guard:          guard,
			AuthService:    authService,
			Writer:         writer,
			Engine:         engine,
			Policy:         policy,
		},
		workers: []api.BackgroundWorker{scheduler},
	}, nil
}
