package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/store"
	"github.com/jensholdgaard/auction-house/internal/store/postgres"
)

func mustListing(t *testing.T, repo *postgres.AuctionRepo, owner int64, start time.Time, dur time.Duration, price string) *store.Auction {
	t.Helper()
	item := &store.Item{OwnerID: owner, Name: "Lamp", Description: "Lamp\nbrass, working", Category: "home"}
	a := &store.Auction{
		StartPrice:      decimal.RequireFromString(price),
		StartTime:       start,
		DurationSeconds: int64(dur / time.Second),
		Status:          "running",
	}
	if err := repo.CreateListing(context.Background(), item, a); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return a
}

func placeBid(ctx context.Context, repo *postgres.AuctionRepo, auctionID, bidder int64, amount string, at time.Time) error {
	return repo.WithLockedAuction(ctx, auctionID, func(ctx context.Context, _ *store.LockedAuction, w store.BidWriter) error {
		return w.InsertBid(ctx, &store.Bid{
			AuctionID: auctionID,
			BidderID:  bidder,
			Amount:    decimal.RequireFromString(amount),
			PlacedAt:  at,
		})
	})
}

func TestAuctionRepo_CreateAndGetByID(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "seller@example.com")
	start := time.Now().UTC().Truncate(time.Second)
	a := mustListing(t, repo, seller.ID, start, time.Hour, "10.00")
	if a.ID == 0 || a.ItemID == 0 {
		t.Fatalf("expected IDs to be set, got auction %d item %d", a.ID, a.ItemID)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SellerID != seller.ID {
		t.Errorf("SellerID = %d, want %d", got.SellerID, seller.ID)
	}
	if got.ItemName != "Lamp" {
		t.Errorf("ItemName = %q, want Lamp", got.ItemName)
	}
	if !got.StartPrice.Equal(decimal.RequireFromString("10")) {
		t.Errorf("StartPrice = %s, want 10", got.StartPrice)
	}
	if got.BidCount != 0 || got.HighBid.Valid || got.LeaderID.Valid {
		t.Errorf("expected no bids, got count=%d high=%v leader=%v", got.BidCount, got.HighBid, got.LeaderID)
	}
	if !got.EndTime().Equal(start.Add(time.Hour)) {
		t.Errorf("EndTime = %v, want %v", got.EndTime(), start.Add(time.Hour))
	}

	if _, err := repo.GetByID(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID(999) error = %v, want ErrNotFound", err)
	}
}

func TestAuctionRepo_LeaderTieBreak(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	b1 := mustUser(t, users, "b1@example.com")
	b2 := mustUser(t, users, "b2@example.com")
	now := time.Now().UTC()
	a := mustListing(t, repo, seller.ID, now.Add(-time.Minute), time.Hour, "1.00")

	if err := placeBid(ctx, repo, a.ID, b1.ID, "5.00", now); err != nil {
		t.Fatalf("bid 1: %v", err)
	}
	if err := placeBid(ctx, repo, a.ID, b2.ID, "5.00", now.Add(time.Second)); err != nil {
		t.Fatalf("bid 2: %v", err)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.BidCount != 2 {
		t.Errorf("BidCount = %d, want 2", got.BidCount)
	}
	if got.LeaderID.Int64 != b1.ID {
		t.Errorf("LeaderID = %d, want earliest bidder %d", got.LeaderID.Int64, b1.ID)
	}

	bids, err := repo.ListBids(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListBids: %v", err)
	}
	if len(bids) != 2 || bids[0].BidderID != b1.ID {
		t.Errorf("ListBids = %+v, want b1 first", bids)
	}
}

func TestAuctionRepo_WithLockedAuction_RollbackOnError(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	bidder := mustUser(t, users, "b@example.com")
	a := mustListing(t, repo, seller.ID, time.Now().UTC().Add(-time.Minute), time.Hour, "1.00")

	errReject := errors.New("reject")
	err := repo.WithLockedAuction(ctx, a.ID, func(ctx context.Context, la *store.LockedAuction, w store.BidWriter) error {
		if la.SellerID != seller.ID {
			t.Errorf("SellerID = %d, want %d", la.SellerID, seller.ID)
		}
		if err := w.InsertBid(ctx, &store.Bid{AuctionID: a.ID, BidderID: bidder.ID, Amount: decimal.NewFromInt(3), PlacedAt: time.Now()}); err != nil {
			return err
		}
		return errReject
	})
	if !errors.Is(err, errReject) {
		t.Fatalf("WithLockedAuction error = %v, want errReject", err)
	}

	bids, _ := repo.ListBids(ctx, a.ID)
	if len(bids) != 0 {
		t.Errorf("expected rolled-back bid to be discarded, got %d bids", len(bids))
	}

	err = repo.WithLockedAuction(ctx, 999, func(context.Context, *store.LockedAuction, store.BidWriter) error {
		t.Error("callback invoked for missing auction")
		return nil
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing auction error = %v, want ErrNotFound", err)
	}
}

// Every goroutine sees the high bid committed by its predecessor, so bidding
// "high + 1" under the lock never produces a duplicate amount.
func TestAuctionRepo_WithLockedAuction_Serializes(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	bidder := mustUser(t, users, "b@example.com")
	a := mustListing(t, repo, seller.ID, time.Now().UTC().Add(-time.Minute), time.Hour, "1.00")

	const workers = 10
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithLockedAuction(ctx, a.ID, func(ctx context.Context, la *store.LockedAuction, w store.BidWriter) error {
				next := la.StartPrice
				if la.HighBid.Valid {
					next = la.HighBid.Decimal
				}
				return w.InsertBid(ctx, &store.Bid{AuctionID: a.ID, BidderID: bidder.ID, Amount: next.Add(decimal.NewFromInt(1)), PlacedAt: time.Now()})
			})
			if err != nil {
				t.Errorf("WithLockedAuction: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.BidCount != workers {
		t.Errorf("BidCount = %d, want %d", got.BidCount, workers)
	}
	if want := decimal.NewFromInt(1 + workers); !got.HighBid.Decimal.Equal(want) {
		t.Errorf("HighBid = %s, want %s", got.HighBid.Decimal, want)
	}
}

func TestAuctionRepo_ListOpenCandidates(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	other := mustUser(t, users, "o@example.com")
	now := time.Now().UTC().Truncate(time.Second)

	late := mustListing(t, repo, seller.ID, now.Add(-time.Minute), 2*time.Hour, "1.00")
	soon := mustListing(t, repo, other.ID, now.Add(-time.Minute), time.Hour, "1.00")
	mustListing(t, repo, seller.ID, now.Add(time.Hour), time.Hour, "1.00")    // not started
	mustListing(t, repo, seller.ID, now.Add(-2*time.Hour), time.Hour, "1.00") // already over

	open, err := repo.ListOpenCandidates(ctx, now, 0, 500)
	if err != nil {
		t.Fatalf("ListOpenCandidates: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("ListOpenCandidates returned %d, want 2", len(open))
	}
	if open[0].ID != soon.ID || open[1].ID != late.ID {
		t.Errorf("order = [%d %d], want [%d %d]", open[0].ID, open[1].ID, soon.ID, late.ID)
	}

	open, err = repo.ListOpenCandidates(ctx, now, other.ID, 500)
	if err != nil {
		t.Fatalf("ListOpenCandidates excluding owner: %v", err)
	}
	if len(open) != 1 || open[0].ID != late.ID {
		t.Errorf("excluding owner %d got %+v, want only %d", other.ID, open, late.ID)
	}

	open, _ = repo.ListOpenCandidates(ctx, now, 0, 1)
	if len(open) != 1 {
		t.Errorf("limit 1 returned %d rows", len(open))
	}
}

func TestAuctionRepo_ListParticipation(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	bidder := mustUser(t, users, "b@example.com")
	now := time.Now().UTC()

	sold := mustListing(t, repo, seller.ID, now.Add(-time.Minute), time.Hour, "1.00")
	bidOn := mustListing(t, repo, bidder.ID, now.Add(-time.Minute), time.Hour, "1.00")
	mustListing(t, repo, bidder.ID, now.Add(-time.Minute), time.Hour, "1.00")

	if err := placeBid(ctx, repo, bidOn.ID, seller.ID, "2.00", now); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := placeBid(ctx, repo, bidOn.ID, seller.ID, "4.00", now.Add(time.Second)); err != nil {
		t.Fatalf("bid: %v", err)
	}

	rows, err := repo.ListParticipation(ctx, seller.ID)
	if err != nil {
		t.Fatalf("ListParticipation: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListParticipation returned %d rows, want 2", len(rows))
	}
	if rows[0].ID != sold.ID || rows[0].UserBids != 0 || rows[0].UserMax.Valid {
		t.Errorf("sold row = %+v", rows[0])
	}
	if rows[1].ID != bidOn.ID || rows[1].UserBids != 2 || !rows[1].UserMax.Decimal.Equal(decimal.NewFromInt(4)) {
		t.Errorf("bid row = %+v", rows[1])
	}
}

func TestAuctionRepo_Materialize(t *testing.T) {
	db := newTestDB(t)
	clk := clock.Real{}
	users := postgres.NewUserRepo(db, clk)
	repo := postgres.NewAuctionRepo(db, clk)
	ctx := context.Background()

	seller := mustUser(t, users, "s@example.com")
	now := time.Now().UTC()

	item := &store.Item{OwnerID: seller.ID, Name: "Later", Description: "Later"}
	sched := &store.Auction{StartPrice: decimal.NewFromInt(1), StartTime: now.Add(-time.Minute), DurationSeconds: 3600, Status: "scheduled"}
	if err := repo.CreateListing(ctx, item, sched); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	over := mustListing(t, repo, seller.ID, now.Add(-2*time.Hour), time.Hour, "1.00")

	started, ended, err := repo.Materialize(ctx, now)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if started != 1 || ended != 1 {
		t.Errorf("Materialize = (%d, %d), want (1, 1)", started, ended)
	}

	got, _ := repo.GetByID(ctx, sched.ID)
	if got.Status != "running" {
		t.Errorf("scheduled auction status = %q, want running", got.Status)
	}
	got, _ = repo.GetByID(ctx, over.ID)
	if got.Status != "ended" {
		t.Errorf("expired auction status = %q, want ended", got.Status)
	}

	started, ended, _ = repo.Materialize(ctx, now)
	if started != 0 || ended != 0 {
		t.Errorf("second Materialize = (%d, %d), want (0, 0)", started, ended)
	}
}
