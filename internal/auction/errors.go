package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/auction-house/internal/money"
)

// Errors returned by the engine. Everything except ErrStorage is a business
// outcome that is safe to show to the user.
var (
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("auction not found")
	ErrAuctionClosed = errors.New("auction is closed for bidding")
	ErrSelfBid       = errors.New("you cannot bid on your own auction")
	ErrBidTooLow     = errors.New("bid is too low")
	ErrStorage       = errors.New("storage failure")
)

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ClosedError is returned for bids on an auction that is not running.
type ClosedError struct {
	AuctionID int64
	Status    Status
}

func (e *ClosedError) Error() string {
	if e.Status == Scheduled {
		return fmt.Sprintf("auction %d has not started yet", e.AuctionID)
	}
	return fmt.Sprintf("auction %d has ended", e.AuctionID)
}

func (e *ClosedError) Is(target error) bool { return target == ErrAuctionClosed }

// BidTooLowError carries the price a bid has to beat.
type BidTooLowError struct {
	CurrentPrice decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return "bid must exceed current price $" + money.Format(e.CurrentPrice)
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }

// StorageError wraps a persistence failure. Its message is not meant for
// end users.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// rejectReason labels a bid rejection for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionClosed):
		return "closed"
	case errors.Is(err, ErrSelfBid):
		return "self_bid"
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	default:
		return "storage"
	}
}
