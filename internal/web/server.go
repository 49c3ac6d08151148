// Package web is the JSON HTTP surface over the account, session and auction
// managers.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house/internal/auction"
	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
	"github.com/jensholdgaard/auction-house/internal/session"
	"github.com/jensholdgaard/auction-house/internal/store"
)

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, email, displayName, password string) (*store.User, error)
	Login(ctx context.Context, email, password string) (*store.User, error)
}

// Sessions manages login sessions.
type Sessions interface {
	Create(ctx context.Context, userID int64) (string, error)
	Authenticate(ctx context.Context, token string) (*session.Principal, error)
	Destroy(ctx context.Context, token string) error
}

// Auctions is the auction engine.
type Auctions interface {
	CreateListing(ctx context.Context, in auction.ListingInput) (int64, error)
	PlaceBid(ctx context.Context, auctionID, bidderID int64, amount string) (*auction.BidResult, error)
	OpenAuctions(ctx context.Context, viewerID int64) ([]auction.BrowseItem, error)
	Get(ctx context.Context, id int64) (*auction.Detail, error)
	ClassifyForUser(ctx context.Context, userID int64) (*auction.Transactions, error)
}

// Server routes requests to the managers.
type Server struct {
	cfg      config.ServerConfig
	cookie   config.SessionConfig
	accounts Accounts
	sessions Sessions
	auctions Auctions
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
	router   *mux.Router
}

// NewServer builds the router. instrument, when non-nil, wraps every matched
// route, typically with Prometheus metrics.
func NewServer(cfg config.ServerConfig, cookie config.SessionConfig, accounts Accounts, sessions Sessions, auctions Auctions, instrument mux.MiddlewareFunc, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Server {
	s := &Server{
		cfg:      cfg,
		cookie:   cookie,
		accounts: accounts,
		sessions: sessions,
		auctions: auctions,
		validate: newValidator(),
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auction-house/internal/web"),
		clock:    clk,
		router:   mux.NewRouter(),
	}
	s.routes(instrument)
	return s
}

// Router returns the root router so callers can mount extra endpoints.
func (s *Server) Router() *mux.Router { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(instrument mux.MiddlewareFunc) {
	r := s.router
	r.Use(s.requestID, s.recoverPanic)
	if instrument != nil {
		r.Use(instrument)
	}
	r.Use(s.accessLog, s.timeout, s.authenticate)

	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.Handle("/me", s.requireUser(s.handleMe)).Methods(http.MethodGet)

	r.HandleFunc("/auctions", s.handleBrowse).Methods(http.MethodGet)
	r.Handle("/auctions", s.requireUser(s.handleSell)).Methods(http.MethodPost)
	r.HandleFunc("/auctions/{id:[0-9]+}", s.handleDetail).Methods(http.MethodGet)
	r.Handle("/auctions/{id:[0-9]+}/bids", s.requireUser(s.handleBid)).Methods(http.MethodPost)
	r.Handle("/transactions", s.requireUser(s.handleTransactions)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
