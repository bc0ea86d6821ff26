package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/view"
)

// NotificationPusher is the minimal interface needed for the admin push
// endpoint.
type NotificationPusher interface {
	Push(ctx context.Context, in app.PushInput) (domain.Notification, error)
}

type pushNotificationRequest struct {
	RecipientID string                  `json:"recipientId"`
	Type        domain.NotificationType `json:"type"`
	Title       string                  `json:"title"`
	Detail      string                  `json:"detail"`
	Related     *view.Related           `json:"related"`
}

// handleAdminPush lets operators append compliance and system notices to
// a user's outbox.
func handleAdminPush(svc NotificationPusher, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, codeForbidden, domain.ErrRoleNotAllowed.Error())
			return
		}
		var req pushNotificationRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		in := app.PushInput{
			RecipientID: req.RecipientID,
			Type:        req.Type,
			Title:       req.Title,
			Detail:      req.Detail,
		}
		if req.Related != nil {
			in.Related = domain.Ref{Kind: req.Related.Kind, ID: req.Related.ID}
		}
		note, err := svc.Push(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, view.NewNotification(note))
	}
}

// HistoryReader is the minimal interface needed for the status history
// endpoint.
type HistoryReader interface {
	List(ctx context.Context, kind domain.RefKind, entityID string) ([]domain.StatusChange, error)
}

// handleAdminHistory returns the status trail of a listing, bid or
// transaction. It answers 503 when no history store is configured.
func handleAdminHistory(history HistoryReader, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, codeForbidden, domain.ErrRoleNotAllowed.Error())
			return
		}
		vars := mux.Vars(r)
		kind := domain.RefKind(vars["kind"])
		switch kind {
		case domain.RefListing, domain.RefBid, domain.RefTransaction:
		default:
			writeError(w, http.StatusBadRequest, "invalid_kind", "kind must be listing, bid or transaction")
			return
		}
		if _, err := uuid.Parse(vars["id"]); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", domain.ErrInvalidID.Error())
			return
		}
		if history == nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "status history is not configured")
			return
		}
		changes, err := history.List(r.Context(), kind, vars["id"])
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view.NewStatusChanges(changes))
	}
}
