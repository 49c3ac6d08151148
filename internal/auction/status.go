package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an auction.
type Status string

// Lifecycle states. Transitions only move forward.
const (
	Scheduled Status = "scheduled"
	Running   Status = "running"
	Ended     Status = "ended"
)

// EffectiveStatus derives an auction's state from its stored flag and its
// time window. The stored flag may lag behind the clock, so every reader
// goes through this function instead of trusting it.
func EffectiveStatus(stored Status, start, end, now time.Time) Status {
	switch {
	case stored == Ended || !now.Before(end):
		return Ended
	case now.Before(start):
		return Scheduled
	default:
		return Running
	}
}

// InitialStatus is the stored status for an auction created at now.
func InitialStatus(start, now time.Time) Status {
	if start.After(now) {
		return Scheduled
	}
	return Running
}

// Open reports whether s accepts bids.
func (s Status) Open() bool { return s == Running }

// CurrentPrice is the highest bid, or the starting price when there are none.
func CurrentPrice(start decimal.Decimal, high decimal.NullDecimal) decimal.Decimal {
	if high.Valid {
		return high.Decimal
	}
	return start
}
