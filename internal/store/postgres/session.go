package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auction-house/internal/store"
)

// SessionRepo implements store.SessionRepository with sqlx.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo returns a new SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *store.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, last_seen) VALUES ($1, $2, $3, $4)`,
		s.Token, s.UserID, s.CreatedAt, s.LastSeen,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating session: %w", store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, token string) (*store.SessionUser, error) {
	var su store.SessionUser
	err := r.db.GetContext(ctx, &su,
		`SELECT s.token, s.user_id, s.created_at, s.last_seen, u.email, u.display_name
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token = $1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &su, nil
}

func (r *SessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen = $1 WHERE token = $2`, at, token)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *SessionRepo) DeleteIdle(ctx context.Context, lastSeenBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen < $1`, lastSeenBefore)
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
