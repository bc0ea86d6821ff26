package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusDeclined BidStatus = "declined"
)

// Terminal reports whether no further transition is allowed.
func (s BidStatus) Terminal() bool {
	return s == BidStatusAccepted || s == BidStatusDeclined
}

// Bid is a buyer's per-ton offer against a listing.
type Bid struct {
	ID        string
	ListingID string
	BidderID  string
	Amount    decimal.Decimal
	Status    BidStatus
	PlacedAt  time.Time
}
