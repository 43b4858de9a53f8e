// Package api exposes the record engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"trustlog/config"
	"trustlog/core/attachments"
	"trustlog/core/auth"
	"trustlog/core/rbac"
	"trustlog/core/records"
	"trustlog/core/store"
	"trustlog/core/utils"
)

// BackgroundWorker is a component started alongside the HTTP server and
// stopped during shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Audits         store.AuditStore
	Files          *attachments.FileStore
	SessionManager *auth.SessionManager
	Guard          *auth.Guard
	AuthService    *auth.Service
	Writer         *records.Writer
	Engine         *records.Engine
	Policy         *rbac.Policy
}

type Server struct {
	cfg            *config.AppConfig
	logger         *utils.Logger
	audits         store.AuditStore
	files          *attachments.FileStore
	sessionManager *auth.SessionManager
	guard          *auth.Guard
	authService    *auth.Service
	writer         *records.Writer
	engine         *records.Engine
	policy         *rbac.Policy
	loginLimiter   *requestLimiter
	activity       *sessionActivity
	workers        []BackgroundWorker
	handler        http.Handler
	httpServer     *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger, workers ...BackgroundWorker) *Server {
	s := &Server{
		cfg:            cfg,
		logger:         logger,
		audits:         deps.Audits,
		files:          deps.Files,
		sessionManager: deps.SessionManager,
		guard:          deps.Guard,
		authService:    deps.AuthService,
		writer:         deps.Writer,
		engine:         deps.Engine,
		policy:         deps.Policy,
		loginLimiter:   newLimiter(cfg.Security.LoginAttempts, cfg.Security.LoginWindow),
		activity:       newSessionActivity(),
		workers:        workers,
	}
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start launches the background workers and serves until the listener fails
// or Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}
	s.logger.Printf("listening on %s (tls=%v)", s.cfg.ListenAddr, s.cfg.TLSEnabled)
	var err error
	if s.cfg.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	for i := len(s.workers) - 1; i >= 0; i-- {
		if err := s.workers[i].StopWithContext(ctx); err != nil {
			s.logger.Errorf("stop worker: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
