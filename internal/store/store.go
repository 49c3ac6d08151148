package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned by every driver.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// User is a registered account.
type User struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	DisplayName  string    `db:"display_name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Session is a server-side login session keyed by an opaque token.
type Session struct {
	Token     string    `db:"token"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	LastSeen  time.Time `db:"last_seen"`
}

// SessionUser is a session joined with the identity it belongs to.
type SessionUser struct {
	Session
	Email       string `db:"email"`
	DisplayName string `db:"display_name"`
}

// Item is a good listed for sale.
type Item struct {
	ID          int64     `db:"id"`
	OwnerID     int64     `db:"owner_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Category    string    `db:"category"`
	CreatedAt   time.Time `db:"created_at"`
}

// Auction is the sellable unit for one Item. Status is the stored flag and
// may lag behind the clock; readers derive the effective state from it.
type Auction struct {
	ID              int64           `db:"id"`
	ItemID          int64           `db:"item_id"`
	StartPrice      decimal.Decimal `db:"start_price"`
	StartTime       time.Time       `db:"start_time"`
	DurationSeconds int64           `db:"duration_seconds"`
	Status          string          `db:"status"` // "scheduled", "running", "ended"
	CreatedAt       time.Time       `db:"created_at"`
}

// Duration returns how long the auction runs.
func (a Auction) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

// EndTime returns StartTime + Duration. It is never stored.
func (a Auction) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}

// Bid is an immutable offer on an auction.
type Bid struct {
	ID        int64           `db:"id"`
	AuctionID int64           `db:"auction_id"`
	BidderID  int64           `db:"bidder_id"`
	Amount    decimal.Decimal `db:"amount"`
	PlacedAt  time.Time       `db:"placed_at"`
}

// AuctionView is an auction joined with its item and bid aggregates.
// LeaderID is the bidder of the highest bid, earliest first among equal
// amounts.
type AuctionView struct {
	Auction
	SellerID    int64               `db:"seller_id"`
	ItemName    string              `db:"item_name"`
	Description string              `db:"description"`
	Category    string              `db:"category"`
	BidCount    int                 `db:"bid_count"`
	HighBid     decimal.NullDecimal `db:"high_bid"`
	LeaderID    sql.NullInt64       `db:"leader_id"`
}

// Participation is an AuctionView seen from one user who either sells the
// item or has bid on it.
type Participation struct {
	AuctionView
	UserMax  decimal.NullDecimal `db:"user_max"`
	UserBids int                 `db:"user_bids"`
}

// LockedAuction is a snapshot of an auction read while holding its
// exclusive lock. HighBid is read after the lock was taken.
type LockedAuction struct {
	Auction
	SellerID int64               `db:"seller_id"`
	HighBid  decimal.NullDecimal `db:"high_bid"`
}

// BidWriter inserts bids inside a locked-auction transaction.
type BidWriter interface {
	InsertBid(ctx context.Context, b *Bid) error
}

// LockedFunc runs while the auction row is locked. Returning nil commits
// whatever it wrote; returning an error discards it.
type LockedFunc func(ctx context.Context, a *LockedAuction, w BidWriter) error

// UserRepository defines user persistence operations.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// SessionRepository defines session persistence operations.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*SessionUser, error)
	Touch(ctx context.Context, token string, at time.Time) error
	Delete(ctx context.Context, token string) error
	DeleteIdle(ctx context.Context, lastSeenBefore time.Time) (int64, error)
}

// AuctionRepository defines item, auction and bid persistence operations.
type AuctionRepository interface {
	// CreateListing inserts the item and its auction atomically.
	CreateListing(ctx context.Context, item *Item, a *Auction) error
	GetByID(ctx context.Context, id int64) (*AuctionView, error)
	// ListBids returns an auction's bids in the order they were placed.
	ListBids(ctx context.Context, auctionID int64) ([]Bid, error)
	// ListOpenCandidates returns auctions not stored as ended whose window
	// contains now, soonest-ending first. excludeOwner 0 excludes nobody.
	ListOpenCandidates(ctx context.Context, now time.Time, excludeOwner int64, limit int) ([]AuctionView, error)
	// ListParticipation returns every auction the user sells or bid on.
	ListParticipation(ctx context.Context, userID int64) ([]Participation, error)
	// WithLockedAuction serializes fn against every other caller locking the
	// same auction. It returns ErrNotFound without calling fn when the
	// auction does not exist.
	WithLockedAuction(ctx context.Context, id int64, fn LockedFunc) error
	// Materialize writes time-derived status transitions back to storage.
	Materialize(ctx context.Context, now time.Time) (started, ended int64, err error)
}
