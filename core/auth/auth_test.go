package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trustlog/config"
	"trustlog/core/errs"
	"trustlog/core/store"
	"trustlog/core/utils"
)

type fixture struct {
	cfg     *config.AppConfig
	db      *store.DB
	users   store.UsersStore
	manager *SessionManager
	guard   *Guard
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:   "sqlite",
		DBPath:     filepath.Join(t.TempDir(), "auth.db"),
		Pepper:     "pepper",
		SessionTTL: time.Hour,
	}
	cfg.Security.MinPasswordChars = 8
	logger := utils.NewNopLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	users := store.NewUsersStore(db)
	manager := NewSessionManager(store.NewSessionsStore(db), cfg, logger)
	guard := NewGuard(manager, users)
	svc := NewService(cfg, users, manager, guard, store.NewAuditStore(db), logger)
	return &fixture{cfg: cfg, db: db, users: users, manager: manager, guard: guard, svc: svc}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", "p1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ok, err := VerifyPassword("correct horse battery staple", "p1", hash); err != nil || !ok {
		t.Fatalf("expected match, got %v %v", ok, err)
	}
	if ok, _ := VerifyPassword("correct horse battery staple", "p2", hash); ok {
		t.Fatalf("pepper must change the outcome")
	}
	long := strings.Repeat("a", 100)
	hash, _ = HashPassword(long, "p1")
	if ok, _ := VerifyPassword(long[:80], "p1", hash); ok {
		t.Fatalf("long passwords must not be truncated")
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Register(ctx, Credentials{Username: " Alex ", Password: "s3cret-pass"}, "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Username != "alex" || sess.CSRFToken == "" {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if _, err := f.svc.Register(ctx, Credentials{Username: "alex", Password: "another-pass"}, "", ""); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := f.svc.Login(ctx, Credentials{Username: "alex", Password: "wrong-pass"}, "", ""); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, Credentials{Username: "ghost", Password: "whatever1"}, "", ""); !errs.Is(err, errs.KindUnauthorized) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	login, err := f.svc.Login(ctx, Credentials{Username: "ALEX", Password: "s3cret-pass"}, "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	st := f.svc.Status(ctx, login.ID)
	if !st.Authenticated || st.Username != "alex" {
		t.Fatalf("unexpected status: %+v", st)
	}
	id, err := f.guard.Authorize(ctx, login.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := f.svc.Logout(ctx, id); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.guard.Authorize(ctx, login.ID); !errs.Is(err, errs.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated after logout, got %v", err)
	}
	if st := f.svc.Status(ctx, login.ID); st.Authenticated {
		t.Fatalf("status must report logged out")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []Credentials{
		{Username: "ab", Password: "long-enough"},
		{Username: "valid.user", Password: "short"},
		{Username: "bad user", Password: "long-enough"},
	}
	for _, c := range cases {
		if _, err := f.svc.Register(context.Background(), c, "", ""); !errs.Is(err, errs.KindValidation) {
			t.Fatalf("expected validation error for %+v, got %v", c, err)
		}
	}
}

func TestGuardRejectsMissingAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.guard.Authorize(ctx, ""); !errs.Is(err, errs.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated for empty token, got %v", err)
	}
	if _, err := f.guard.Authorize(ctx, "not-a-session"); !errs.Is(err, errs.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown token, got %v", err)
	}

	user := &store.User{Username: "sam", PasswordHash: "x"}
	if _, err := f.users.Create(ctx, user); err != nil {
		t.Fatalf("user: %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if err := store.NewSessionsStore(f.db).SaveSession(ctx, &store.SessionRecord{
		ID: "old", UserID: user.ID, Username: user.Username, Roles: user.Roles, CSRFToken: "c",
		CreatedAt: past, LastSeenAt: past, ExpiresAt: past.Add(time.Minute),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.guard.Authorize(ctx, "old"); !errs.Is(err, errs.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated for expired session, got %v", err)
	}
	n, err := f.manager.PurgeExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purge: %d %v", n, err)
	}
}

// brokenUsers fails every lookup as an unreachable database would.
type brokenUsers struct {
	store.UsersStore
}

var errUsersDown = errors.New("users table unavailable")

func (brokenUsers) Get(context.Context, int64) (*store.User, error) {
	return nil, errUsersDown
}

func TestGuardReportsStorageFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Register(ctx, Credentials{Username: "robin", Password: "long-enough"}, "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	guard := NewGuard(f.manager, brokenUsers{f.users})
	_, err = guard.Authorize(ctx, sess.ID)
	if !errors.Is(err, errUsersDown) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
	if kind := errs.KindOf(err); kind != "" {
		t.Fatalf("storage failure classified as %q", kind)
	}
	if st := NewService(f.cfg, f.users, f.manager, guard, nil, utils.NewNopLogger()).Status(ctx, sess.ID); st.Authenticated {
		t.Fatalf("status must read as unauthenticated on lookup failure")
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("empty context must not carry an identity")
	}
	ctx := WithIdentity(context.Background(), &Identity{Username: "alex"})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Username != "alex" {
		t.Fatalf("identity lost: %+v", id)
	}
}
