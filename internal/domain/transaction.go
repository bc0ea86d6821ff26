package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageNegotiation Stage = "negotiation"
	StageInTransit   Stage = "in-transit"
	StageDelivered   Stage = "delivered"
)

var stageOrder = map[Stage]int{
	StageNegotiation: 0,
	StageInTransit:   1,
	StageDelivered:   2,
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// CanAdvanceTo enforces strictly forward progression.
func (s Stage) CanAdvanceTo(target Stage) error {
	if !target.Valid() {
		return ErrInvalidStage
	}
	if s == StageDelivered {
		return ErrTransactionDelivered
	}
	if stageOrder[target] <= stageOrder[s] {
		return ErrStageNotForward
	}
	return nil
}

// Transaction is the binding deal created when a bid is accepted.
// Value is fixed at creation.
type Transaction struct {
	ID        string
	ListingID string
	BidID     string
	SellerID  string
	BuyerID   string
	Value     decimal.Decimal
	Stage     Stage
	Documents []string
	CreatedAt time.Time
	UpdatedAt time.Time

	// ListingTitle is populated on read.
	ListingTitle string
}

func (t Transaction) HasParty(userID string) bool {
	return userID != "" && (t.SellerID == userID || t.BuyerID == userID)
}

// Counterparty returns the other party, or "" when userID is not a party.
func (t Transaction) Counterparty(userID string) string {
	switch userID {
	case t.SellerID:
		return t.BuyerID
	case t.BuyerID:
		return t.SellerID
	}
	return ""
}

func (t Transaction) HasDocument(name string) bool {
	return slices.Contains(t.Documents, name)
}
