package http

import (
	"context"
	"net/http"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/view"
)

// NotificationService is the minimal interface needed for notification
// endpoints.
type NotificationService interface {
	List(ctx context.Context, actor domain.User, page, limit int) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, actor domain.User) (int, error)
	MarkRead(ctx context.Context, actor domain.User, id string) (domain.Notification, error)
	MarkAllRead(ctx context.Context, actor domain.User) (int, error)
	Delete(ctx context.Context, actor domain.User, id string) error
}

type notificationPage struct {
	Notifications []view.Notification `json:"notifications"`
	Unread        int                 `json:"unread"`
	Page          int                 `json:"page"`
	Limit         int                 `json:"limit"`
}

func handleListNotifications(svc NotificationService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		page, err := queryInt(r, "page")
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "page must be an integer")
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "limit must be an integer")
			return
		}
		page, limit = app.Page(page, limit)

		notes, err := svc.List(r.Context(), actor, page, limit)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		unread, err := svc.UnreadCount(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, notificationPage{
			Notifications: view.NewNotifications(notes),
			Unread:        unread,
			Page:          page,
			Limit:         limit,
		})
	}
}

func handleUnreadCount(svc NotificationService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		n, err := svc.UnreadCount(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}

func handleMarkNotificationRead(svc NotificationService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		note, err := svc.MarkRead(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, view.NewNotification(note))
	}
}

func handleMarkAllNotificationsRead(svc NotificationService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		n, err := svc.MarkAllRead(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	}
}

func handleDeleteNotification(svc NotificationService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
