// Package memory is an in-process store.Driver. It keeps every table in maps
// guarded by one mutex and serializes bids per auction with a dedicated lock,
// mirroring the row lock the postgres driver takes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
	"github.com/jensholdgaard/auction-house/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
		db := New(clk)
		return &store.Repositories{
			Users:    db.Users(),
			Sessions: db.Sessions(),
			Auctions: db.Auctions(),
			Closer:   closerFunc(func() error { return nil }),
			Ping:     func(context.Context) error { return nil },
		}, nil
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// DB holds all in-memory state.
type DB struct {
	clock clock.Clock

	mu       sync.RWMutex
	users    map[int64]store.User
	sessions map[string]store.Session
	items    map[int64]store.Item
	auctions map[int64]store.Auction
	bids     map[int64][]store.Bid // by auction, in insertion order

	nextUser, nextItem, nextAuction, nextBid int64

	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

// New returns an empty DB.
func New(clk clock.Clock) *DB {
	return &DB{
		clock:    clk,
		users:    make(map[int64]store.User),
		sessions: make(map[string]store.Session),
		items:    make(map[int64]store.Item),
		auctions: make(map[int64]store.Auction),
		bids:     make(map[int64][]store.Bid),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Users returns the user repository.
func (db *DB) Users() *UserRepo { return &UserRepo{db: db} }

// Sessions returns the session repository.
func (db *DB) Sessions() *SessionRepo { return &SessionRepo{db: db} }

// Auctions returns the auction repository.
func (db *DB) Auctions() *AuctionRepo { return &AuctionRepo{db: db} }

func (db *DB) auctionLock(id int64) *sync.Mutex {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()
	l, ok := db.locks[id]
	if !ok {
		l = &sync.Mutex{}
		db.locks[id] = l
	}
	return l
}

// UserRepo implements store.UserRepository.
type UserRepo struct{ db *DB }

func (r *UserRepo) Create(_ context.Context, u *store.User) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.users {
		if existing.Email == u.Email {
			return store.ErrConflict
		}
	}
	db.nextUser++
	u.ID = db.nextUser
	u.CreatedAt = db.clock.Now().UTC()
	db.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*store.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*store.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

// SessionRepo implements store.SessionRepository.
type SessionRepo struct{ db *DB }

func (r *SessionRepo) Create(_ context.Context, s *store.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.sessions[s.Token]; ok {
		return store.ErrConflict
	}
	if _, ok := r.db.users[s.UserID]; !ok {
		return store.ErrNotFound
	}
	r.db.sessions[s.Token] = *s
	return nil
}

func (r *SessionRepo) Get(_ context.Context, token string) (*store.SessionUser, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	s, ok := r.db.sessions[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := r.db.users[s.UserID]
	return &store.SessionUser{Session: s, Email: u.Email, DisplayName: u.DisplayName}, nil
}

func (r *SessionRepo) Touch(_ context.Context, token string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[token]
	if !ok {
		return store.ErrNotFound
	}
	s.LastSeen = at
	r.db.sessions[token] = s
	return nil
}

func (r *SessionRepo) Delete(_ context.Context, token string) error {
	r.db.mu.Lock()
	delete(r.db.sessions, token)
	r.db.mu.Unlock()
	return nil
}

func (r *SessionRepo) DeleteIdle(_ context.Context, lastSeenBefore time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for token, s := range r.db.sessions {
		if s.LastSeen.Before(lastSeenBefore) {
			delete(r.db.sessions, token)
			n++
		}
	}
	return n, nil
}

// AuctionRepo implements store.AuctionRepository.
type AuctionRepo struct{ db *DB }

func (r *AuctionRepo) CreateListing(_ context.Context, item *store.Item, a *store.Auction) error {
	db := r.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[item.OwnerID]; !ok {
		return store.ErrNotFound
	}
	now := db.clock.Now().UTC()

	db.nextItem++
	item.ID = db.nextItem
	item.CreatedAt = now
	db.items[item.ID] = *item

	db.nextAuction++
	a.ID = db.nextAuction
	a.ItemID = item.ID
	a.CreatedAt = now
	db.auctions[a.ID] = *a
	return nil
}

// view builds the AuctionView for a. Callers hold db.mu.
func (db *DB) view(a store.Auction) store.AuctionView {
	item := db.items[a.ItemID]
	v := store.AuctionView{
		Auction:     a,
		SellerID:    item.OwnerID,
		ItemName:    item.Name,
		Description: item.Description,
		Category:    item.Category,
	}
	bids := db.bids[a.ID]
	v.BidCount = len(bids)
	if lead, ok := leader(bids); ok {
		v.HighBid = decimal.NewNullDecimal(lead.Amount)
		v.LeaderID.Int64, v.LeaderID.Valid = lead.BidderID, true
	}
	return v
}

// leader returns the highest bid, earliest placed then lowest ID among
// equal amounts.
func leader(bids []store.Bid) (store.Bid, bool) {
	if len(bids) == 0 {
		return store.Bid{}, false
	}
	best := bids[0]
	for _, b := range bids[1:] {
		switch c := b.Amount.Cmp(best.Amount); {
		case c > 0:
			best = b
		case c == 0 && (b.PlacedAt.Before(best.PlacedAt) || (b.PlacedAt.Equal(best.PlacedAt) && b.ID < best.ID)):
			best = b
		}
	}
	return best, true
}

func (r *AuctionRepo) GetByID(_ context.Context, id int64) (*store.AuctionView, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	a, ok := r.db.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := r.db.view(a)
	return &v, nil
}

func (r *AuctionRepo) ListBids(_ context.Context, auctionID int64) ([]store.Bid, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	bids := append([]store.Bid(nil), r.db.bids[auctionID]...)
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].PlacedAt.Equal(bids[j].PlacedAt) {
			return bids[i].PlacedAt.Before(bids[j].PlacedAt)
		}
		return bids[i].ID < bids[j].ID
	})
	return bids, nil
}

func (r *AuctionRepo) ListOpenCandidates(_ context.Context, now time.Time, excludeOwner int64, limit int) ([]store.AuctionView, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []store.AuctionView
	for _, a := range r.db.auctions {
		if a.Status == "ended" || a.StartTime.After(now) || !a.EndTime().After(now) {
			continue
		}
		if excludeOwner != 0 && r.db.items[a.ItemID].OwnerID == excludeOwner {
			continue
		}
		out = append(out, r.db.view(a))
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := out[i].EndTime(), out[j].EndTime()
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *AuctionRepo) ListParticipation(_ context.Context, userID int64) ([]store.Participation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []store.Participation
	for _, a := range r.db.auctions {
		p := store.Participation{AuctionView: r.db.view(a)}
		for _, b := range r.db.bids[a.ID] {
			if b.BidderID != userID {
				continue
			}
			p.UserBids++
			if !p.UserMax.Valid || b.Amount.GreaterThan(p.UserMax.Decimal) {
				p.UserMax = decimal.NewNullDecimal(b.Amount)
			}
		}
		if p.SellerID == userID || p.UserBids > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AuctionRepo) WithLockedAuction(ctx context.Context, id int64, fn store.LockedFunc) error {
	db := r.db
	l := db.auctionLock(id)
	l.Lock()
	defer l.Unlock()

	db.mu.RLock()
	a, ok := db.auctions[id]
	var la store.LockedAuction
	if ok {
		la.Auction = a
		la.SellerID = db.items[a.ItemID].OwnerID
		if lead, has := leader(db.bids[id]); has {
			la.HighBid = decimal.NewNullDecimal(lead.Amount)
		}
	}
	db.mu.RUnlock()
	if !ok {
		return store.ErrNotFound
	}

	w := &pendingBids{db: db}
	if err := fn(ctx, &la, w); err != nil {
		return err
	}

	db.mu.Lock()
	for _, b := range w.bids {
		db.bids[b.AuctionID] = append(db.bids[b.AuctionID], b)
	}
	db.mu.Unlock()
	return nil
}

func (r *AuctionRepo) Materialize(_ context.Context, now time.Time) (started, ended int64, err error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, a := range r.db.auctions {
		switch {
		case a.Status != "ended" && !a.EndTime().After(now):
			a.Status = "ended"
			ended++
		case a.Status == "scheduled" && !a.StartTime.After(now):
			a.Status = "running"
			started++
		default:
			continue
		}
		r.db.auctions[id] = a
	}
	return started, ended, nil
}

// pendingBids buffers inserts until the locked callback succeeds.
type pendingBids struct {
	db   *DB
	bids []store.Bid
}

func (w *pendingBids) InsertBid(_ context.Context, b *store.Bid) error {
	w.db.mu.Lock()
	defer w.db.mu.Unlock()
	if _, ok := w.db.auctions[b.AuctionID]; !ok {
		return store.ErrNotFound
	}
	w.db.nextBid++
	b.ID = w.db.nextBid
	w.bids = append(w.bids, *b)
	return nil
}
