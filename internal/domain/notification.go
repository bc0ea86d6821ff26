package domain

import "time"

type NotificationType string

const (
	NotificationBid        NotificationType = "bid"
	NotificationMessage    NotificationType = "message"
	NotificationCompliance NotificationType = "compliance"
	NotificationSystem     NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationBid, NotificationMessage, NotificationCompliance, NotificationSystem:
		return true
	}
	return false
}

// RefKind tags the entity a notification points at.
type RefKind string

const (
	RefNone        RefKind = ""
	RefBid         RefKind = "bid"
	RefTransaction RefKind = "transaction"
	RefMessage     RefKind = "message"
	RefListing     RefKind = "listing"
	RefUser        RefKind = "user"
)

// Ref is a tagged reference. Consumers switch on Kind and never inspect
// the referenced record to guess what it is.
type Ref struct {
	Kind RefKind
	ID   string
}

// Complete reports whether kind and id are either both set or both empty.
func (r Ref) Complete() bool {
	return (r.Kind == RefNone) == (r.ID == "")
}

func BidRef(id string) Ref         { return Ref{Kind: RefBid, ID: id} }
func TransactionRef(id string) Ref { return Ref{Kind: RefTransaction, ID: id} }
func MessageRef(id string) Ref     { return Ref{Kind: RefMessage, ID: id} }
func ListingRef(id string) Ref     { return Ref{Kind: RefListing, ID: id} }
func UserRef(id string) Ref        { return Ref{Kind: RefUser, ID: id} }

// allowedRefs lists which reference kinds each notification type may carry.
var allowedRefs = map[NotificationType][]RefKind{
	NotificationBid:        {RefBid, RefTransaction, RefListing},
	NotificationMessage:    {RefMessage},
	NotificationSystem:     {RefTransaction, RefListing, RefNone},
	NotificationCompliance: {RefUser, RefNone},
}

// Accepts reports whether a notification of type t may point at kind k.
func (t NotificationType) Accepts(k RefKind) bool {
	for _, allowed := range allowedRefs[t] {
		if allowed == k {
			return true
		}
	}
	return false
}

type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Detail      string
	Related     Ref
	Read        bool
	CreatedAt   time.Time
}
