package auth

import (
	"context"
	"errors"
	"strings"

	"trustlog/config"
	"trustlog/core/errs"
	"trustlog/core/store"
	"trustlog/core/utils"

	"golang.org/x/crypto/bcrypt"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Status struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

type Service struct {
	cfg      *config.AppConfig
	users    store.UsersStore
	sessions *SessionManager
	guard    *Guard
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewService(cfg *config.AppConfig, users store.UsersStore, sessions *SessionManager, guard *Guard, audits store.AuditStore, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, users: users, sessions: sessions, guard: guard, audits: audits, logger: logger}
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (s *Service) Login(ctx context.Context, cred Credentials, ip, userAgent string) (*Session, error) {
	username := normalizeUsername(cred.Username)
	if username == "" || cred.Password == "" {
		return nil, errs.Unauthorized("invalid username or password")
	}
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		_ = bcrypt.CompareHashAndPassword(dummyHash, peppered(cred.Password, s.cfg.Pepper))
		s.audit(ctx, username, "auth.login_failed", "user missing or inactive")
		return nil, errs.Unauthorized("invalid username or password")
	}
	ok, err := VerifyPassword(cred.Password, s.cfg.Pepper, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit(ctx, username, "auth.login_failed", "invalid password")
		return nil, errs.Unauthorized("invalid username or password")
	}
	sess, err := s.sessions.Create(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	_ = s.users.TouchLogin(ctx, user.ID, sess.CreatedAt)
	s.audit(ctx, user.Username, "auth.login_success", "")
	return sess, nil
}

// Register creates the account and opens a session for it.
func (s *Service) Register(ctx context.Context, cred Credentials, ip, userAgent string) (*Session, error) {
	username := normalizeUsername(cred.Username)
	if err := utils.ValidateUsername(username); err != nil {
		return nil, errs.Validation("%s", err.Error())
	}
	if err := utils.ValidatePassword(cred.Password, s.cfg.Security.MinPasswordChars); err != nil {
		return nil, errs.Validation("%s", err.Error())
	}
	hash, err := HashPassword(cred.Password, s.cfg.Pepper)
	if err != nil {
		return nil, err
	}
	user := &store.User{Username: username, PasswordHash: hash, Roles: []string{"owner"}}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, errs.Conflict("username already exists")
		}
		return nil, err
	}
	s.audit(ctx, username, "auth.register", "")
	sess, err := s.sessions.Create(ctx, user, ip, userAgent)
	if err != nil {
		return nil, err
	}
	_ = s.users.TouchLogin(ctx, user.ID, sess.CreatedAt)
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, id *Identity) error {
	if id == nil {
		return errs.Unauthenticated("")
	}
	if err := s.sessions.Delete(ctx, id.SessionID); err != nil {
		return err
	}
	s.audit(ctx, id.Username, "auth.logout", "")
	return nil
}

// Status never fails; lookup errors read as unauthenticated and are logged.
func (s *Service) Status(ctx context.Context, token string) Status {
	id, err := s.guard.Authorize(ctx, token)
	if err != nil {
		if errs.KindOf(err) == "" {
			s.logger.Errorf("session status: %v", err)
		}
		return Status{}
	}
	return Status{Authenticated: true, Username: id.Username}
}

func (s *Service) audit(ctx context.Context, username, action, details string) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, username, action, details); err != nil {
		s.logger.Errorf("audit %s: %v", action, err)
	}
}
