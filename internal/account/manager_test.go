package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/jensholdgaard/auction-house/internal/store"
)

type mockUserRepo struct {
	users map[string]*store.User
	next  int64
	err   error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*store.User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *store.User) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.users[u.Email]; ok {
		return store.ErrConflict
	}
	m.next++
	u.ID = m.next
	m.users[u.Email] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*store.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*store.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func newTestManager(repo store.UserRepository) *Manager {
	m := NewManager(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), noop.NewTracerProvider())
	m.cost = bcrypt.MinCost
	return m
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		display  string
		password string
		wantErr  error
		wantName string
	}{
		{name: "defaults display name", email: " Alice@Example.com ", password: "secret1", wantName: "alice"},
		{name: "explicit display name", email: "bob@example.com", display: "Bobby", password: "secret1", wantName: "Bobby"},
		{name: "missing tld", email: "carol@example", password: "secret1", wantErr: ErrInvalidEmail},
		{name: "whitespace in email", email: "ca rol@example.com", password: "secret1", wantErr: ErrInvalidEmail},
		{name: "short password", email: "dave@example.com", password: "12345", wantErr: ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(newMockUserRepo())
			u, err := m.Register(context.Background(), tt.email, tt.display, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if u.DisplayName != tt.wantName {
				t.Errorf("DisplayName = %q, want %q", u.DisplayName, tt.wantName)
			}
			if u.PasswordHash == tt.password {
				t.Error("password stored in clear text")
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	m := newTestManager(newMockUserRepo())
	ctx := context.Background()
	if _, err := m.Register(ctx, "erin@example.com", "", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := m.Register(ctx, "ERIN@example.com", "", "secret2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("error = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	m := newTestManager(newMockUserRepo())
	ctx := context.Background()
	reg, err := m.Register(ctx, "frank@example.com", "", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	u, err := m.Login(ctx, "Frank@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != reg.ID {
		t.Errorf("ID = %d, want %d", u.ID, reg.ID)
	}

	if _, err := m.Login(ctx, "frank@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := m.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_StoreError(t *testing.T) {
	repo := newMockUserRepo()
	repo.err = errors.New("db down")
	m := newTestManager(repo)

	_, err := m.Login(context.Background(), "a@b.co", "whatever")
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
}

func TestGet(t *testing.T) {
	m := newTestManager(newMockUserRepo())
	ctx := context.Background()
	reg, _ := m.Register(ctx, "gina@example.com", "", "secret1")

	u, err := m.Get(ctx, reg.ID)
	if err != nil || u.Email != "gina@example.com" {
		t.Fatalf("Get = (%+v, %v)", u, err)
	}
	if _, err := m.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
