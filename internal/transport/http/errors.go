package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tuniwaste/exchange/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeUnauthorized       = "unauthorized"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidQuery       = "invalid_query"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
	codeUnavailable        = "unavailable"
)

// errorCodes gives specific sentinels a stable code. Anything not listed
// falls back to the name of its kind.
var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidID, "invalid_id"},
	{domain.ErrInvalidAmount, "invalid_amount"},
	{domain.ErrInvalidQuantity, "invalid_quantity"},
	{domain.ErrInvalidPrice, "invalid_price"},
	{domain.ErrInvalidCategory, "invalid_category"},
	{domain.ErrInvalidCoords, "invalid_coords"},
	{domain.ErrInvalidStage, "invalid_stage"},
	{domain.ErrInvalidType, "invalid_notification_type"},
	{domain.ErrInvalidRef, "invalid_related"},
	{domain.ErrInvalidDocument, "invalid_document"},
	{domain.ErrTitleRequired, "title_required"},
	{domain.ErrMaterialRequired, "material_required"},
	{domain.ErrLocationRequired, "location_required"},
	{domain.ErrEmptyBody, "message_body_required"},
	{domain.ErrSelfThread, "self_thread"},
	{domain.ErrRoleNotAllowed, "role_not_allowed"},
	{domain.ErrUnverified, "unverified"},
	{domain.ErrNotOwner, "not_owner"},
	{domain.ErrOwnListing, "own_listing"},
	{domain.ErrNotParty, "not_party"},
	{domain.ErrNotParticipant, "not_participant"},
	{domain.ErrNotRecipient, "not_recipient"},
	{domain.ErrUserNotFound, "user_not_found"},
	{domain.ErrListingNotFound, "listing_not_found"},
	{domain.ErrBidNotFound, "bid_not_found"},
	{domain.ErrTransactionNotFound, "transaction_not_found"},
	{domain.ErrThreadNotFound, "thread_not_found"},
	{domain.ErrMessageNotFound, "message_not_found"},
	{domain.ErrNotificationNotFound, "notification_not_found"},
	{domain.ErrListingNotOpen, "listing_not_open"},
	{domain.ErrListingAwarded, "listing_awarded"},
	{domain.ErrListingLocked, "listing_locked"},
	{domain.ErrBidNotPending, "bid_not_pending"},
	{domain.ErrBidAlreadyAccepted, "bid_already_accepted"},
	{domain.ErrTransactionExists, "transaction_exists"},
	{domain.ErrTransactionDelivered, "transaction_delivered"},
	{domain.ErrStageNotForward, "stage_not_forward"},
	{domain.ErrUnavailable, codeUnavailable},
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps a service error onto the HTTP taxonomy. Details
// of unclassified errors are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if kind == domain.KindUnknown || kind == domain.KindUnavailable {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	switch kind {
	case domain.KindUnknown:
		writeError(w, status, codeInternalError, "internal error")
		return
	case domain.KindUnavailable:
		writeError(w, status, codeUnavailable, domain.ErrUnavailable.Error())
		return
	}

	code := kind.String()
	msg := err.Error()
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			code = ec.code
			msg = ec.err.Error()
			break
		}
	}
	writeError(w, status, code, msg)
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
