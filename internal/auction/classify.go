package auction

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auction-house/internal/store"
)

// Summary is an auction as shown on browse and history pages.
type Summary struct {
	AuctionID     int64
	ItemName      string
	Description   string
	Category      string
	SellerID      int64
	StartPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal
	BidCount      int
	LeaderID      int64 // 0 without bids
	Status        Status
	StartTime     time.Time
	EndTime       time.Time
	TimeRemaining time.Duration
}

// Entry is a Summary seen from one user.
type Entry struct {
	Summary
	YourMax    decimal.NullDecimal
	YourBids   int
	IsLeading  bool
	FinalPrice decimal.NullDecimal // set once the auction has ended with bids
}

// Transactions partitions a user's auctions. Every bucket is ordered by end
// time, then auction id.
type Transactions struct {
	SellingActive []Entry
	SellingEnded  []Entry
	Purchases     []Entry
	CurrentBids   []Entry
	DidntWin      []Entry
}

func summarize(v store.AuctionView, now time.Time) Summary {
	end := v.EndTime()
	s := Summary{
		AuctionID:    v.ID,
		ItemName:     v.ItemName,
		Description:  v.Description,
		Category:     v.Category,
		SellerID:     v.SellerID,
		StartPrice:   v.StartPrice,
		CurrentPrice: CurrentPrice(v.StartPrice, v.HighBid),
		BidCount:     v.BidCount,
		Status:       EffectiveStatus(Status(v.Status), v.StartTime, end, now),
		StartTime:    v.StartTime,
		EndTime:      end,
	}
	if v.LeaderID.Valid {
		s.LeaderID = v.LeaderID.Int64
	}
	if s.Status != Ended {
		s.TimeRemaining = end.Sub(now)
	}
	return s
}

// Classify buckets rows for userID at now. Rows the user sells go to the
// selling buckets only. The winner of an ended auction is the store's
// leader, which breaks ties on amount by the earliest bid.
func Classify(rows []store.Participation, userID int64, now time.Time) *Transactions {
	t := &Transactions{}
	for _, p := range rows {
		e := Entry{
			Summary:  summarize(p.AuctionView, now),
			YourMax:  p.UserMax,
			YourBids: p.UserBids,
		}
		ended := e.Status == Ended
		if ended && p.HighBid.Valid {
			e.FinalPrice = p.HighBid
		}

		switch {
		case p.SellerID == userID && ended:
			t.SellingEnded = append(t.SellingEnded, e)
		case p.SellerID == userID:
			t.SellingActive = append(t.SellingActive, e)
		case p.UserBids == 0:
			// Neither seller nor bidder.
		case !ended:
			e.IsLeading = p.UserMax.Valid && p.HighBid.Valid && p.UserMax.Decimal.Equal(p.HighBid.Decimal)
			t.CurrentBids = append(t.CurrentBids, e)
		case e.LeaderID == userID:
			e.IsLeading = true
			t.Purchases = append(t.Purchases, e)
		default:
			t.DidntWin = append(t.DidntWin, e)
		}
	}
	for _, bucket := range [][]Entry{t.SellingActive, t.SellingEnded, t.Purchases, t.CurrentBids, t.DidntWin} {
		sortEntries(bucket)
	}
	return t
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].EndTime.Equal(es[j].EndTime) {
			return es[i].EndTime.Before(es[j].EndTime)
		}
		return es[i].AuctionID < es[j].AuctionID
	})
}
