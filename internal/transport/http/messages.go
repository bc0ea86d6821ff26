package http

import (
	"context"
	"net/http"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/domain"
)

// MessagingService is the minimal interface needed for thread and message
// endpoints.
type MessagingService interface {
	ListThreads(ctx context.Context, actor domain.User) ([]domain.ThreadSummary, error)
	CreateThread(ctx context.Context, actor domain.User, in app.CreateThreadInput) (domain.Thread, bool, error)
	Messages(ctx context.Context, actor domain.User, threadID string) ([]domain.Message, error)
	Send(ctx context.Context, actor domain.User, in app.SendMessageInput) (domain.Message, error)
	MarkMessageRead(ctx context.Context, actor domain.User, messageID string) error
	MarkThreadRead(ctx context.Context, actor domain.User, threadID string) (int, error)
}

type createThreadRequest struct {
	ParticipantID string `json:"participantId"`
	ListingID     string `json:"listingId"`
}

type sendMessageRequest struct {
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

func handleListThreads(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		threads, err := svc.ListThreads(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.ThreadSummaries(actor, threads))
	}
}

// handleCreateThread answers 201 for a new thread and 200 when an
// existing one was found.
func handleCreateThread(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req createThreadRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		thread, created, err := svc.CreateThread(r.Context(), actor, app.CreateThreadInput{
			OtherUserID: req.ParticipantID,
			ListingID:   req.ListingID,
		})
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, env.render.Thread(thread))
	}
}

func handleThreadMessages(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		msgs, err := svc.Messages(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Messages(r.Context(), actor, msgs))
	}
}

func handleSendMessage(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req sendMessageRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		msg, err := svc.Send(r.Context(), actor, app.SendMessageInput{
			ThreadID:    id,
			Body:        req.Body,
			Attachments: req.Attachments,
		})
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, env.render.Message(r.Context(), actor, msg))
	}
}

func handleMarkThreadRead(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		n, err := svc.MarkThreadRead(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"marked": n})
	}
}

func handleMarkMessageRead(svc MessagingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.MarkMessageRead(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
