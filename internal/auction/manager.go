// Package auction is the bidding and lifecycle engine: listing creation, bid
// admission under a per-auction lock, price and leader derivation, and
// per-user classification of auctions.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
	"github.com/jensholdgaard/auction-house/internal/money"
	"github.com/jensholdgaard/auction-house/internal/store"
)

const instrumentationName = "github.com/jensholdgaard/auction-house/internal/auction"

// maxNameRunes bounds item names derived from a description.
const maxNameRunes = 80

// Manager runs auction operations against an AuctionRepository.
type Manager struct {
	auctions store.AuctionRepository
	cfg      config.AuctionConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	bidsAccepted    metric.Int64Counter
	bidsRejected    metric.Int64Counter
	listingsCreated metric.Int64Counter
}

// NewManager returns a new auction Manager.
func NewManager(auctions store.AuctionRepository, cfg config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Manager, error) {
	meter := mp.Meter(instrumentationName)
	accepted, err := meter.Int64Counter("auction.bids.accepted",
		metric.WithDescription("Bids admitted by the engine"))
	if err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("auction.bids.rejected",
		metric.WithDescription("Bids rejected by the engine, by reason"))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	created, err := meter.Int64Counter("auction.listings.created",
		metric.WithDescription("Listings created"))
	if err != nil {
		return nil, fmt.Errorf("creating listings counter: %w", err)
	}

	return &Manager{
		auctions:        auctions,
		cfg:             cfg,
		logger:          logger,
		tracer:          tp.Tracer(instrumentationName),
		clock:           clk,
		bidsAccepted:    accepted,
		bidsRejected:    rejected,
		listingsCreated: created,
	}, nil
}

// ListingInput is what a seller submits.
type ListingInput struct {
	SellerID      int64
	Name          string // optional, derived from Description when empty
	Description   string
	Category      string
	StartingPrice string
	StartTime     time.Time
}

// CreateListing stores an item and its auction together and returns the
// auction id. The auction runs for the configured duration.
func (m *Manager) CreateListing(ctx context.Context, in ListingInput) (int64, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateListing",
		trace.WithAttributes(attribute.Int64("seller_id", in.SellerID)),
	)
	defer span.End()

	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return 0, &ValidationError{Field: "description", Reason: "is required"}
	}
	price, err := money.ParseNonNegative(in.StartingPrice)
	if errors.Is(err, money.ErrTooLarge) {
		return 0, &ValidationError{Field: "starting_price", Reason: "must not exceed " + money.Format(money.Max)}
	}
	if err != nil {
		return 0, &ValidationError{Field: "starting_price", Reason: "must be a non-negative amount with at most 2 decimals"}
	}
	if in.StartTime.IsZero() {
		return 0, &ValidationError{Field: "start_time", Reason: "is required"}
	}

	now := m.clock.Now()
	item := &store.Item{
		OwnerID:     in.SellerID,
		Name:        itemName(in.Name, desc),
		Description: desc,
		Category:    strings.TrimSpace(in.Category),
	}
	a := &store.Auction{
		StartPrice:      price,
		StartTime:       in.StartTime.UTC(),
		DurationSeconds: int64(m.cfg.Duration / time.Second),
		Status:          string(InitialStatus(in.StartTime, now)),
	}
	if err := m.auctions.CreateListing(ctx, item, a); err != nil {
		return 0, m.storageFailure(ctx, span, "creating listing", err)
	}

	m.listingsCreated.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("auction_id", a.ID))
	m.logger.InfoContext(ctx, "listing created",
		slog.Int64("auction_id", a.ID),
		slog.Int64("seller_id", in.SellerID),
		slog.String("start_price", money.Format(price)),
		slog.String("status", a.Status),
	)
	return a.ID, nil
}

// itemName returns name, or the first line of desc cut to maxNameRunes.
func itemName(name, desc string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	line, _, _ := strings.Cut(desc, "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= maxNameRunes {
		return line
	}
	return string([]rune(line)[:maxNameRunes])
}

// BidResult describes an admitted bid. IsLeading is always true: an admitted
// bid is strictly above every earlier one.
type BidResult struct {
	AuctionID    int64
	BidID        int64
	CurrentPrice decimal.Decimal
	IsLeading    bool
	PlacedAt     time.Time
}

// PlaceBid admits a bid of amount by bidderID. Checks run under the auction
// lock in a fixed order: open for bidding, not the seller, strictly above
// the current price. Nothing is written unless all pass.
func (m *Manager) PlaceBid(ctx context.Context, auctionID, bidderID int64, amount string) (*BidResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.Int64("auction_id", auctionID),
			attribute.Int64("bidder_id", bidderID),
			attribute.String("amount", amount),
		),
	)
	defer span.End()

	amt, err := money.Parse(amount)
	if errors.Is(err, money.ErrTooLarge) {
		return nil, m.rejectBid(ctx, auctionID, &ValidationError{Field: "amount", Reason: "must not exceed " + money.Format(money.Max)})
	}
	if err != nil {
		return nil, m.rejectBid(ctx, auctionID, &ValidationError{Field: "amount", Reason: "must be an amount with at most 2 decimals"})
	}
	if !amt.IsPositive() {
		return nil, m.rejectBid(ctx, auctionID, &ValidationError{Field: "amount", Reason: "must be greater than 0.00"})
	}

	var res *BidResult
	err = m.auctions.WithLockedAuction(ctx, auctionID, func(ctx context.Context, la *store.LockedAuction, w store.BidWriter) error {
		now := m.clock.Now()
		if st := EffectiveStatus(Status(la.Status), la.StartTime, la.EndTime(), now); !st.Open() {
			return &ClosedError{AuctionID: auctionID, Status: st}
		}
		if la.SellerID == bidderID {
			return ErrSelfBid
		}
		current := CurrentPrice(la.StartPrice, la.HighBid)
		if !amt.GreaterThan(current) {
			return &BidTooLowError{CurrentPrice: current}
		}

		b := &store.Bid{
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amt,
			PlacedAt:  now.UTC(),
		}
		if err := w.InsertBid(ctx, b); err != nil {
			return err
		}
		res = &BidResult{
			AuctionID:    auctionID,
			BidID:        b.ID,
			CurrentPrice: amt,
			IsLeading:    true,
			PlacedAt:     b.PlacedAt,
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return nil, m.rejectBid(ctx, auctionID, fmt.Errorf("auction %d: %w", auctionID, ErrNotFound))
	case errors.Is(err, ErrAuctionClosed), errors.Is(err, ErrSelfBid), errors.Is(err, ErrBidTooLow):
		return nil, m.rejectBid(ctx, auctionID, err)
	default:
		return nil, m.rejectBid(ctx, auctionID, m.storageFailure(ctx, span, "placing bid", err))
	}

	m.bidsAccepted.Add(ctx, 1)
	m.logger.InfoContext(ctx, "bid accepted",
		slog.Int64("auction_id", auctionID),
		slog.Int64("bidder_id", bidderID),
		slog.Int64("bid_id", res.BidID),
		slog.String("amount", money.Format(amt)),
	)
	return res, nil
}

func (m *Manager) rejectBid(ctx context.Context, auctionID int64, err error) error {
	reason := rejectReason(err)
	m.bidsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	if reason != "storage" {
		m.logger.DebugContext(ctx, "bid rejected",
			slog.Int64("auction_id", auctionID),
			slog.String("reason", reason),
		)
	}
	return err
}

// storageFailure logs err once and wraps it in a StorageError.
func (m *Manager) storageFailure(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	m.logger.ErrorContext(ctx, "storage failure",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return &StorageError{Op: op, Err: err}
}

// BrowseItem is an open auction on the browse page, with badges for the
// viewer when one is logged in.
type BrowseItem struct {
	Summary
	HasBid    bool
	IsWinning bool
}

// OpenAuctions returns running auctions, soonest-ending first, at most the
// configured listing limit. A non-zero viewerID hides the viewer's own items
// and fills the bid badges.
func (m *Manager) OpenAuctions(ctx context.Context, viewerID int64) ([]BrowseItem, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.OpenAuctions",
		trace.WithAttributes(attribute.Int64("viewer_id", viewerID)),
	)
	defer span.End()

	now := m.clock.Now()
	views, err := m.auctions.ListOpenCandidates(ctx, now, viewerID, m.cfg.ListingLimit)
	if err != nil {
		return nil, m.storageFailure(ctx, span, "listing open auctions", err)
	}

	var mine map[int64]store.Participation
	if viewerID != 0 {
		rows, err := m.auctions.ListParticipation(ctx, viewerID)
		if err != nil {
			return nil, m.storageFailure(ctx, span, "listing participation", err)
		}
		mine = make(map[int64]store.Participation, len(rows))
		for _, p := range rows {
			mine[p.ID] = p
		}
	}

	out := make([]BrowseItem, 0, len(views))
	for _, v := range views {
		s := summarize(v, now)
		if s.Status != Running {
			continue
		}
		item := BrowseItem{Summary: s}
		if p, ok := mine[v.ID]; ok && p.UserBids > 0 {
			item.HasBid = true
			item.IsWinning = p.UserMax.Valid && v.HighBid.Valid && p.UserMax.Decimal.Equal(v.HighBid.Decimal)
		}
		out = append(out, item)
	}
	return out, nil
}

// Detail is one auction with its full bid history, oldest first.
type Detail struct {
	Summary
	Bids []store.Bid
}

// Get returns the auction with id.
func (m *Manager) Get(ctx context.Context, id int64) (*Detail, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.Int64("auction_id", id)),
	)
	defer span.End()

	v, err := m.auctions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("auction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, m.storageFailure(ctx, span, "getting auction", err)
	}
	bids, err := m.auctions.ListBids(ctx, id)
	if err != nil {
		return nil, m.storageFailure(ctx, span, "listing bids", err)
	}
	return &Detail{Summary: summarize(*v, m.clock.Now()), Bids: bids}, nil
}

// ClassifyForUser partitions every auction userID sells or bid on.
func (m *Manager) ClassifyForUser(ctx context.Context, userID int64) (*Transactions, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ClassifyForUser",
		trace.WithAttributes(attribute.Int64("user_id", userID)),
	)
	defer span.End()

	rows, err := m.auctions.ListParticipation(ctx, userID)
	if err != nil {
		return nil, m.storageFailure(ctx, span, "listing participation", err)
	}
	return Classify(rows, userID, m.clock.Now()), nil
}
