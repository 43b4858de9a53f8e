// Package maintenance runs periodic housekeeping: expired session removal and
// cleanup of attachment files that no record references.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trustlog/config"
	"trustlog/core/attachments"
	"trustlog/core/store"
	"trustlog/core/utils"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cfg      config.MaintenanceConfig
	sessions store.SessionStore
	records  store.RecordsStore
	files    *attachments.FileStore
	logger   *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.MaintenanceConfig, sessions store.SessionStore, records store.RecordsStore, files *attachments.FileStore, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, sessions: sessions, records: records, files: files, logger: logger}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.SessionPurgeSpec, func() { _, _ = s.PurgeSessions(runCtx, time.Now().UTC()) }); err != nil {
		cancel()
		return fmt.Errorf("session purge schedule %q: %w", s.cfg.SessionPurgeSpec, err)
	}
	if _, err := c.AddFunc(s.cfg.OrphanSweepSpec, func() { _, _ = s.SweepFiles(runCtx, time.Now().UTC()) }); err != nil {
		cancel()
		return fmt.Errorf("orphan sweep schedule %q: %w", s.cfg.OrphanSweepSpec, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c, cancel, wasRunning := s.cron, s.cancel, s.running
	s.cron, s.cancel, s.running = nil, nil, false
	s.mu.Unlock()
	if !wasRunning {
		return nil
	}
	cancel()
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.sessions.PurgeExpired(ctx, now)
	if err != nil {
		s.logger.Errorf("maintenance: purge sessions: %v", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Printf("maintenance: purged %d expired sessions", n)
	}
	return n, nil
}

// SweepFiles removes files no attachment row references plus stale staging
// and trash entries. Recent files are left alone so in-flight writes survive.
func (s *Scheduler) SweepFiles(ctx context.Context, now time.Time) (attachments.SweepResult, error) {
	refs, err := s.records.ReferencedStorageNames(ctx)
	if err != nil {
		s.logger.Errorf("maintenance: list referenced files: %v", err)
		return attachments.SweepResult{}, err
	}
	maxAge := s.cfg.StagingMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	res, err := s.files.Sweep(refs, maxAge, now)
	if err != nil {
		s.logger.Errorf("maintenance: sweep files: %v", err)
		return res, err
	}
	if res.Orphans+res.Staged+res.Trashed > 0 {
		s.logger.Printf("maintenance: removed orphans=%d staged=%d trashed=%d", res.Orphans, res.Staged, res.Trashed)
	}
	return res, nil
}
