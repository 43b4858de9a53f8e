package auth

import (
	"context"
	"fmt"
	"strings"

	"trustlog/core/errs"
	"trustlog/core/store"
)

// Identity is the authenticated caller passed explicitly into every record
// operation.
type Identity struct {
	UserID    int64
	Username  string
	Roles     []string
	SessionID string
	CSRFToken string
}

type Guard struct {
	sessions *SessionManager
	users    store.UsersStore
}

func NewGuard(sessions *SessionManager, users store.UsersStore) *Guard {
	return &Guard{sessions: sessions, users: users}
}

// Authorize resolves a session token to an identity. A missing, expired or
// orphaned session is errs.KindUnauthenticated; storage failures come back
// unclassified so callers can tell an outage from a logged-out client.
func (g *Guard) Authorize(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errs.Unauthenticated("session required")
	}
	sr, err := g.sessions.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if sr == nil {
		return nil, errs.Unauthenticated("session expired or unknown")
	}
	user, err := g.users.Get(ctx, sr.UserID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user == nil || !user.Active {
		_ = g.sessions.Delete(ctx, sr.ID)
		return nil, errs.Unauthenticated("user inactive")
	}
	return &Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Roles:     user.Roles,
		SessionID: sr.ID,
		CSRFToken: sr.CSRFToken,
	}, nil
}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, SessionContextKey, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(SessionContextKey).(*Identity)
	return id, ok && id != nil
}
