package domain

import "errors"

// Kind classifies an error for the boundary layer. Callers never retry
// Validation/Forbidden/NotFound/Conflict; Unavailable is retryable.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// KindOf reports the classification of err, looking through wrapping.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

var (
	ErrInvalidID        = newError(KindValidation, "invalid id")
	ErrInvalidAmount    = newError(KindValidation, "amount must be positive")
	ErrInvalidQuantity  = newError(KindValidation, "quantity must be positive")
	ErrInvalidPrice     = newError(KindValidation, "price must not be negative")
	ErrInvalidCategory  = newError(KindValidation, "invalid category")
	ErrInvalidCoords    = newError(KindValidation, "coordinates must be [longitude, latitude]")
	ErrInvalidStage     = newError(KindValidation, "invalid stage")
	ErrInvalidType      = newError(KindValidation, "invalid notification type")
	ErrInvalidRef       = newError(KindValidation, "related reference needs both a kind and a valid id")
	ErrInvalidDocument  = newError(KindValidation, "invalid document name")
	ErrTitleRequired    = newError(KindValidation, "title is required")
	ErrMaterialRequired = newError(KindValidation, "material is required")
	ErrLocationRequired = newError(KindValidation, "location is required")
	ErrEmptyBody        = newError(KindValidation, "message body is required")
	ErrSelfThread       = newError(KindValidation, "cannot open a thread with yourself")

	ErrRoleNotAllowed = newError(KindForbidden, "role not allowed")
	ErrUnverified     = newError(KindForbidden, "user must be verified")
	ErrNotOwner       = newError(KindForbidden, "not the listing owner")
	ErrOwnListing     = newError(KindForbidden, "cannot bid on your own listing")
	ErrNotParty       = newError(KindForbidden, "not a party to this transaction")
	ErrNotParticipant = newError(KindForbidden, "not a participant in this thread")
	ErrNotRecipient   = newError(KindForbidden, "not the notification recipient")

	ErrUserNotFound         = newError(KindNotFound, "user not found")
	ErrListingNotFound      = newError(KindNotFound, "listing not found")
	ErrBidNotFound          = newError(KindNotFound, "bid not found")
	ErrTransactionNotFound  = newError(KindNotFound, "transaction not found")
	ErrThreadNotFound       = newError(KindNotFound, "thread not found")
	ErrMessageNotFound      = newError(KindNotFound, "message not found")
	ErrNotificationNotFound = newError(KindNotFound, "notification not found")

	ErrListingNotOpen       = newError(KindConflict, "listing is not open")
	ErrListingAwarded       = newError(KindConflict, "listing is awarded")
	ErrListingLocked        = newError(KindConflict, "listing has a transaction")
	ErrBidNotPending        = newError(KindConflict, "bid is not pending")
	ErrBidAlreadyAccepted   = newError(KindConflict, "listing already has an accepted bid")
	ErrTransactionExists    = newError(KindConflict, "transaction already exists for bid")
	ErrTransactionDelivered = newError(KindConflict, "transaction already delivered")
	ErrStageNotForward      = newError(KindConflict, "stage can only move forward")

	ErrUnavailable = newError(KindUnavailable, "service unavailable")
)
