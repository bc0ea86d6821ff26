package http

import (
	"context"
	"net/http"

	"github.com/tuniwaste/exchange/internal/domain"
)

// TransactionService is the minimal interface needed for transaction
// endpoints.
type TransactionService interface {
	ListMine(ctx context.Context, actor domain.User) ([]domain.Transaction, error)
	Get(ctx context.Context, actor domain.User, id string) (domain.Transaction, error)
	AdvanceStage(ctx context.Context, actor domain.User, id string, target domain.Stage) (domain.Transaction, error)
	AttachDocument(ctx context.Context, actor domain.User, id, document string) (domain.Transaction, error)
}

type advanceStageRequest struct {
	Stage domain.Stage `json:"stage"`
}

type attachDocumentRequest struct {
	Name string `json:"name"`
}

func handleMyTransactions(svc TransactionService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		txns, err := svc.ListMine(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Transactions(r.Context(), actor, txns))
	}
}

func handleGetTransaction(svc TransactionService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		txn, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Transaction(r.Context(), actor, txn))
	}
}

func handleAdvanceStage(svc TransactionService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req advanceStageRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		txn, err := svc.AdvanceStage(r.Context(), actor, id, req.Stage)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Transaction(r.Context(), actor, txn))
	}
}

func handleAttachDocument(svc TransactionService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req attachDocumentRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		txn, err := svc.AttachDocument(r.Context(), actor, id, req.Name)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Transaction(r.Context(), actor, txn))
	}
}
