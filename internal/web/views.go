package web

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auction-house/internal/auction"
	"github.com/jensholdgaard/auction-house/internal/money"
)

type summaryResponse struct {
	AuctionID            int64     `json:"auction_id"`
	ItemName             string    `json:"item_name"`
	Description          string    `json:"description"`
	Category             string    `json:"category,omitempty"`
	SellerID             int64     `json:"seller_id"`
	StartPrice           string    `json:"start_price"`
	CurrentPrice         string    `json:"current_price"`
	BidCount             int       `json:"bid_count"`
	Status               string    `json:"status"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

type browseItem struct {
	summaryResponse
	HasBid    bool `json:"has_bid"`
	IsWinning bool `json:"is_winning"`
}

type bidView struct {
	BidID    int64     `json:"bid_id"`
	BidderID int64     `json:"bidder_id"`
	Amount   string    `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

type detailResponse struct {
	summaryResponse
	LeaderID int64     `json:"leader_id,omitempty"`
	Bids     []bidView `json:"bids"`
}

type entryResponse struct {
	summaryResponse
	YourMax    string `json:"your_max,omitempty"`
	YourBids   int    `json:"your_bids"`
	IsLeading  bool   `json:"is_leading"`
	FinalPrice string `json:"final_price,omitempty"`
}

type transactionsResponse struct {
	SellingActive []entryResponse `json:"selling_active"`
	SellingEnded  []entryResponse `json:"selling_ended"`
	Purchases     []entryResponse `json:"purchases"`
	CurrentBids   []entryResponse `json:"current_bids"`
	DidntWin      []entryResponse `json:"didnt_win"`
}

func formatMoney(d decimal.Decimal) string { return money.Format(d) }

func formatNullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return money.Format(d.Decimal)
}

func newSummary(s auction.Summary) summaryResponse {
	return summaryResponse{
		AuctionID:            s.AuctionID,
		ItemName:             s.ItemName,
		Description:          s.Description,
		Category:             s.Category,
		SellerID:             s.SellerID,
		StartPrice:           formatMoney(s.StartPrice),
		CurrentPrice:         formatMoney(s.CurrentPrice),
		BidCount:             s.BidCount,
		Status:               string(s.Status),
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		TimeRemainingSeconds: int64(s.TimeRemaining / time.Second),
	}
}

func newDetail(d *auction.Detail) detailResponse {
	out := detailResponse{
		summaryResponse: newSummary(d.Summary),
		LeaderID:        d.LeaderID,
		Bids:            make([]bidView, 0, len(d.Bids)),
	}
	for _, b := range d.Bids {
		out.Bids = append(out.Bids, bidView{
			BidID:    b.ID,
			BidderID: b.BidderID,
			Amount:   formatMoney(b.Amount),
			PlacedAt: b.PlacedAt,
		})
	}
	return out
}

func newEntries(es []auction.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(es))
	for _, e := range es {
		out = append(out, entryResponse{
			summaryResponse: newSummary(e.Summary),
			YourMax:         formatNullMoney(e.YourMax),
			YourBids:        e.YourBids,
			IsLeading:       e.IsLeading,
			FinalPrice:      formatNullMoney(e.FinalPrice),
		})
	}
	return out
}

func newTransactions(t *auction.Transactions) transactionsResponse {
	return transactionsResponse{
		SellingActive: newEntries(t.SellingActive),
		SellingEnded:  newEntries(t.SellingEnded),
		Purchases:     newEntries(t.Purchases),
		CurrentBids:   newEntries(t.CurrentBids),
		DidntWin:      newEntries(t.DidntWin),
	}
}
