package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/view"
)

// BidService is the minimal interface needed for bid endpoints.
type BidService interface {
	Place(ctx context.Context, actor domain.User, in app.PlaceBidInput) (domain.Bid, error)
	Accept(ctx context.Context, actor domain.User, bidID string) (app.AcceptBidResult, error)
	Decline(ctx context.Context, actor domain.User, bidID string) (domain.Bid, error)
	ListForListing(ctx context.Context, actor domain.User, listingID string) ([]domain.Bid, error)
	ListMine(ctx context.Context, actor domain.User) ([]domain.Bid, error)
}

type placeBidRequest struct {
	ListingID string          `json:"listingId"`
	Amount    decimal.Decimal `json:"amount"`
}

type acceptBidResponse struct {
	Bid         view.Bid         `json:"bid"`
	Listing     view.Listing     `json:"listing"`
	Transaction view.Transaction `json:"transaction"`
	Thread      view.Thread      `json:"thread"`
	Declined    int              `json:"declined"`
}

func handlePlaceBid(svc BidService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req placeBidRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		bid, err := svc.Place(r.Context(), actor, app.PlaceBidInput{
			ListingID: req.ListingID,
			Amount:    req.Amount,
		})
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, env.render.Bid(r.Context(), actor, bid))
	}
}

func handleAcceptBid(svc BidService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		res, err := svc.Accept(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		ctx := r.Context()
		writeJSON(w, http.StatusOK, acceptBidResponse{
			Bid:         env.render.Bid(ctx, actor, res.Bid),
			Listing:     env.render.Listing(ctx, actor, res.Listing),
			Transaction: env.render.Transaction(ctx, actor, res.Transaction),
			Thread:      env.render.Thread(res.Thread),
			Declined:    len(res.Declined),
		})
	}
}

func handleDeclineBid(svc BidService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		bid, err := svc.Decline(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Bid(r.Context(), actor, bid))
	}
}

func handleListingBids(svc BidService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		bids, err := svc.ListForListing(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Bids(r.Context(), actor, bids))
	}
}

func handleMyBids(svc BidService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		bids, err := svc.ListMine(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Bids(r.Context(), actor, bids))
	}
}
