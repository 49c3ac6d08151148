// Package account registers users and checks their credentials.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/jensholdgaard/auction-house/internal/store"
)

// Password length bounds. bcrypt ignores bytes past 72.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 72
)

// Errors returned by account operations.
var (
	ErrInvalidEmail       = errors.New("please enter a valid email address")
	ErrWeakPassword       = fmt.Errorf("password must be between %d and %d characters", MinPasswordLen, MaxPasswordLen)
	ErrEmailTaken         = errors.New("that email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Manager handles registration and login.
type Manager struct {
	users  store.UserRepository
	logger *slog.Logger
	tracer trace.Tracer
	cost   int
}

// NewManager returns a new account Manager.
func NewManager(users store.UserRepository, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		users:  users,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/auction-house/internal/account"),
		cost:   bcrypt.DefaultCost,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. An empty displayName defaults to the local part
// of the email.
func (m *Manager) Register(ctx context.Context, email, displayName, password string) (*store.User, error) {
	email = NormalizeEmail(email)
	ctx, span := m.tracer.Start(ctx, "Manager.Register",
		trace.WithAttributes(attribute.String("email", email)),
	)
	defer span.End()

	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return nil, ErrWeakPassword
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &store.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := m.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	m.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", u.ID),
		slog.String("display_name", u.DisplayName),
	)
	return u, nil
}

// Login returns the user whose credentials match.
func (m *Manager) Login(ctx context.Context, email, password string) (*store.User, error) {
	email = NormalizeEmail(email)
	ctx, span := m.tracer.Start(ctx, "Manager.Login",
		trace.WithAttributes(attribute.String("email", email)),
	)
	defer span.End()

	u, err := m.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		m.logger.WarnContext(ctx, "login failed", slog.Int64("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the user with id.
func (m *Manager) Get(ctx context.Context, id int64) (*store.User, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.Int64("user_id", id)),
	)
	defer span.End()

	u, err := m.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	return u, nil
}
