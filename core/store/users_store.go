package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Roles        []string   `json:"roles"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
	Count(ctx context.Context) (int, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{"owner"}
	}
	existing, err := s.FindByUsername(ctx, u.Username)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrConflict
	}
	id, err := s.db.insertReturningID(ctx, s.db, `
		INSERT INTO users(username, password_hash, roles, active, created_at)
		VALUES(?,?,?,?,?)`,
		u.Username, u.PasswordHash, strings.Join(u.Roles, ","), true, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	u.ID = id
	u.Active = true
	return id, nil
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(`
		SELECT id, username, password_hash, roles, active, created_at, last_login_at
		FROM users WHERE username=?`), username)
	return scanUser(row)
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(`
		SELECT id, username, password_hash, roles, active, created_at, last_login_at
		FROM users WHERE id=?`), id)
	return scanUser(row)
}

func (s *usersStore) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`UPDATE users SET last_login_at=? WHERE id=?`), at.UTC(), id)
	return err
}

func (s *usersStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var roles string
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.Active, &u.CreatedAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Roles = splitRoles(roles)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func splitRoles(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") || strings.Contains(msg, "sqlstate 23505")
}
