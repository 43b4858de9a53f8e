package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type SessionRecord struct {
	ID         string
	UserID     int64
	Username   string
	Roles      []string
	IP         string
	UserAgent  string
	CSRFToken  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type SessionStore interface {
	SaveSession(ctx context.Context, sess *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	db *DB
}

func NewSessionsStore(db *DB) SessionStore {
	return &sessionsStore{db: db}
}

func (s *sessionsStore) SaveSession(ctx context.Context, sess *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO sessions(id, user_id, username, roles, ip, user_agent, csrf_token, created_at, last_seen_at, expires_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`),
		sess.ID, sess.UserID, sess.Username, strings.Join(sess.Roles, ","), sess.IP, sess.UserAgent,
		sess.CSRFToken, sess.CreatedAt.UTC(), sess.LastSeenAt.UTC(), sess.ExpiresAt.UTC())
	return err
}

// GetSession returns nil for unknown and expired sessions alike.
func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(`
		SELECT id, user_id, username, roles, ip, user_agent, csrf_token, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=?`), id)
	var sess SessionRecord
	var roles string
	var ip, ua sql.NullString
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Username, &roles, &ip, &ua, &sess.CSRFToken,
		&sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !sess.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	sess.Roles = splitRoles(roles)
	sess.IP = ip.String
	sess.UserAgent = ua.String
	return &sess, nil
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM sessions WHERE id=?`), id)
	return err
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=?`),
		now.UTC(), now.UTC().Add(ttl), id)
	return err
}

func (s *sessionsStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
