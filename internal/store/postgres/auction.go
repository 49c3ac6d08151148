package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/store"
)

// viewColumns and viewJoins build store.AuctionView rows. The leader is the
// bidder of the highest amount, earliest bid first among equal amounts.
const (
	viewColumns = `a.id, a.item_id, a.start_price, a.start_time, a.duration_seconds, a.status, a.created_at,
		i.owner_id AS seller_id, i.name AS item_name, i.description, i.category,
		agg.bid_count, agg.high_bid, ldr.bidder_id AS leader_id`

	viewJoins = `FROM auctions a
		JOIN items i ON i.id = a.item_id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS bid_count, MAX(b.amount) AS high_bid
			FROM bids b WHERE b.auction_id = a.id
		) agg ON true
		LEFT JOIN LATERAL (
			SELECT b.bidder_id
			FROM bids b WHERE b.auction_id = a.id
			ORDER BY b.amount DESC, b.placed_at ASC, b.id ASC
			LIMIT 1
		) ldr ON true`

	endTimeExpr = `a.start_time + a.duration_seconds * INTERVAL '1 second'`
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) CreateListing(ctx context.Context, item *store.Item, a *store.Auction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clock.Now().UTC()
	item.CreatedAt = now
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO items (owner_id, name, description, category, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.OwnerID, item.Name, item.Description, item.Category, item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}

	a.ItemID = item.ID
	a.CreatedAt = now
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO auctions (item_id, start_price, start_time, duration_seconds, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.ItemID, a.StartPrice, a.StartTime, a.DurationSeconds, a.Status, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("inserting auction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing listing: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id int64) (*store.AuctionView, error) {
	var v store.AuctionView
	err := r.db.GetContext(ctx, &v, `SELECT `+viewColumns+` `+viewJoins+` WHERE a.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction %d: %w", id, err)
	}
	return &v, nil
}

func (r *AuctionRepo) ListBids(ctx context.Context, auctionID int64) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT id, auction_id, bidder_id, amount, placed_at
		 FROM bids WHERE auction_id = $1 ORDER BY placed_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids for auction %d: %w", auctionID, err)
	}
	return bids, nil
}

func (r *AuctionRepo) ListOpenCandidates(ctx context.Context, now time.Time, excludeOwner int64, limit int) ([]store.AuctionView, error) {
	var views []store.AuctionView
	err := r.db.SelectContext(ctx, &views,
		`SELECT `+viewColumns+` `+viewJoins+`
		 WHERE a.status <> 'ended'
		   AND a.start_time <= $1
		   AND `+endTimeExpr+` > $1
		   AND ($2::BIGINT = 0 OR i.owner_id <> $2::BIGINT)
		 ORDER BY `+endTimeExpr+` ASC, a.id ASC
		 LIMIT $3`,
		now, excludeOwner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing open auctions: %w", err)
	}
	return views, nil
}

func (r *AuctionRepo) ListParticipation(ctx context.Context, userID int64) ([]store.Participation, error) {
	var rows []store.Participation
	err := r.db.SelectContext(ctx, &rows,
		`WITH mine AS (
			SELECT auction_id, MAX(amount) AS user_max, COUNT(*) AS user_bids
			FROM bids WHERE bidder_id = $1
			GROUP BY auction_id
		)
		SELECT `+viewColumns+`, mine.user_max, COALESCE(mine.user_bids, 0) AS user_bids
		`+viewJoins+`
		LEFT JOIN mine ON mine.auction_id = a.id
		WHERE i.owner_id = $1 OR mine.auction_id IS NOT NULL
		ORDER BY a.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing participation for user %d: %w", userID, err)
	}
	return rows, nil
}

// WithLockedAuction takes a row lock on the auction for the lifetime of a
// transaction. The high bid is read after the lock is granted, so under
// READ COMMITTED it reflects every bid committed by earlier lock holders.
func (r *AuctionRepo) WithLockedAuction(ctx context.Context, id int64, fn store.LockedFunc) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var la store.LockedAuction
	err = tx.GetContext(ctx, &la,
		`SELECT a.id, a.item_id, a.start_price, a.start_time, a.duration_seconds, a.status, a.created_at,
		        i.owner_id AS seller_id
		 FROM auctions a
		 JOIN items i ON i.id = a.item_id
		 WHERE a.id = $1
		 FOR UPDATE OF a`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking auction %d: %w", id, err)
	}

	if err := tx.GetContext(ctx, &la.HighBid,
		`SELECT MAX(amount) FROM bids WHERE auction_id = $1`, id); err != nil {
		return fmt.Errorf("reading high bid for auction %d: %w", id, err)
	}

	if err := fn(ctx, &la, &txBidWriter{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing auction %d: %w", id, err)
	}
	return nil
}

func (r *AuctionRepo) Materialize(ctx context.Context, now time.Time) (started, ended int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE auctions a SET status = 'ended'
		 WHERE a.status <> 'ended' AND `+endTimeExpr+` <= $1`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("ending auctions: %w", err)
	}
	ended, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`UPDATE auctions a SET status = 'running'
		 WHERE a.status = 'scheduled' AND a.start_time <= $1 AND `+endTimeExpr+` > $1`, now)
	if err != nil {
		return 0, 0, fmt.Errorf("starting auctions: %w", err)
	}
	started, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing status sweep: %w", err)
	}
	return started, ended, nil
}

// txBidWriter inserts bids inside the locking transaction.
type txBidWriter struct {
	tx *sqlx.Tx
}

func (w *txBidWriter) InsertBid(ctx context.Context, b *store.Bid) error {
	err := w.tx.QueryRowxContext(ctx,
		`INSERT INTO bids (auction_id, bidder_id, amount, placed_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		b.AuctionID, b.BidderID, b.Amount, b.PlacedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}
	return nil
}
