// Package session issues opaque login tokens and enforces the idle timeout.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
	"github.com/jensholdgaard/auction-house/internal/store"
)

// tokenBytes of entropy, hex encoded to twice as many characters.
const tokenBytes = 32

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Errors returned by Authenticate.
var (
	ErrNoSession = errors.New("no session")
	ErrExpired   = errors.New("session expired")
)

// Principal is the authenticated identity behind a token.
type Principal struct {
	UserID      int64
	Email       string
	DisplayName string
}

// Manager creates, checks and destroys sessions.
type Manager struct {
	sessions store.SessionRepository
	idle     time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewManager returns a new session Manager.
func NewManager(sessions store.SessionRepository, cfg config.SessionConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		sessions: sessions,
		idle:     cfg.IdleTimeout,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auction-house/internal/session"),
		clock:    clk,
	}
}

// IdleTimeout is how long a session survives without requests.
func (m *Manager) IdleTimeout() time.Duration { return m.idle }

// Create starts a session for userID and returns its token.
func (m *Manager) Create(ctx context.Context, userID int64) (string, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(attribute.Int64("user_id", userID)),
	)
	defer span.End()

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(buf)

	now := m.clock.Now().UTC()
	if err := m.sessions.Create(ctx, &store.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		LastSeen:  now,
	}); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

// Authenticate resolves token to its user and refreshes its idle timer. A
// session idle for longer than the timeout is deleted.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Principal, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Authenticate")
	defer span.End()

	if !tokenPattern.MatchString(token) {
		return nil, ErrNoSession
	}

	su, err := m.sessions.Get(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	now := m.clock.Now().UTC()
	if now.Sub(su.LastSeen) > m.idle {
		if err := m.sessions.Delete(ctx, token); err != nil {
			m.logger.WarnContext(ctx, "deleting expired session", slog.Any("error", err))
		}
		return nil, ErrExpired
	}

	if err := m.sessions.Touch(ctx, token, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	span.SetAttributes(attribute.Int64("user_id", su.UserID))
	return &Principal{UserID: su.UserID, Email: su.Email, DisplayName: su.DisplayName}, nil
}

// Destroy ends the session for token. Unknown tokens are ignored.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Destroy")
	defer span.End()

	if !tokenPattern.MatchString(token) {
		return nil
	}
	if err := m.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PurgeIdle deletes every session idle for longer than the timeout.
func (m *Manager) PurgeIdle(ctx context.Context) (int64, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PurgeIdle")
	defer span.End()

	n, err := m.sessions.DeleteIdle(ctx, m.clock.Now().UTC().Add(-m.idle))
	if err != nil {
		return 0, fmt.Errorf("purging idle sessions: %w", err)
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "purged idle sessions", slog.Int64("count", n))
	}
	return n, nil
}
