package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/app"
	"github.com/tuniwaste/exchange/internal/domain"
)

// ListingService is the minimal interface needed for listing endpoints.
type ListingService interface {
	Create(ctx context.Context, actor domain.User, in app.CreateListingInput) (domain.Listing, error)
	Update(ctx context.Context, actor domain.User, id string, in app.UpdateListingInput) (domain.Listing, error)
	Delete(ctx context.Context, actor domain.User, id string) error
	Get(ctx context.Context, actor domain.User, id string) (domain.Listing, error)
	ListMine(ctx context.Context, actor domain.User) ([]domain.Listing, error)
	ListVisible(ctx context.Context, actor domain.User, filter domain.ListingFilter) ([]domain.Listing, error)
}

type createListingRequest struct {
	Title              string          `json:"title"`
	Material           string          `json:"material"`
	Category           domain.Category `json:"category"`
	QuantityTons       decimal.Decimal `json:"quantityTons"`
	PricePerTon        decimal.Decimal `json:"pricePerTon"`
	Location           string          `json:"location"`
	Coords             domain.Coords   `json:"coords"`
	Certifications     []string        `json:"certifications"`
	AvailableFrom      *time.Time      `json:"availableFrom"`
	ExpiresOn          *time.Time      `json:"expiresOn"`
	PickupRequirements string          `json:"pickupRequirements"`
	Documents          []string        `json:"documents"`
	Thumbnail          string          `json:"thumbnail"`
}

func (req createListingRequest) input() app.CreateListingInput {
	in := app.CreateListingInput{
		Title:              req.Title,
		Material:           req.Material,
		Category:           req.Category,
		QuantityTons:       req.QuantityTons,
		PricePerTon:        req.PricePerTon,
		Location:           req.Location,
		Coords:             req.Coords,
		Certifications:     req.Certifications,
		PickupRequirements: req.PickupRequirements,
		Documents:          req.Documents,
		Thumbnail:          req.Thumbnail,
	}
	if req.AvailableFrom != nil {
		in.AvailableFrom = req.AvailableFrom.UTC()
	}
	if req.ExpiresOn != nil {
		in.ExpiresOn = req.ExpiresOn.UTC()
	}
	return in
}

type updateListingRequest struct {
	Title              *string          `json:"title"`
	Material           *string          `json:"material"`
	Category           *domain.Category `json:"category"`
	QuantityTons       *decimal.Decimal `json:"quantityTons"`
	PricePerTon        *decimal.Decimal `json:"pricePerTon"`
	Location           *string          `json:"location"`
	Coords             *domain.Coords   `json:"coords"`
	Certifications     []string         `json:"certifications"`
	AvailableFrom      *time.Time       `json:"availableFrom"`
	ExpiresOn          *time.Time       `json:"expiresOn"`
	PickupRequirements *string          `json:"pickupRequirements"`
	Documents          []string         `json:"documents"`
	Thumbnail          *string          `json:"thumbnail"`
}

func (req updateListingRequest) input() app.UpdateListingInput {
	return app.UpdateListingInput{
		Title:              req.Title,
		Material:           req.Material,
		Category:           req.Category,
		QuantityTons:       req.QuantityTons,
		PricePerTon:        req.PricePerTon,
		Location:           req.Location,
		Coords:             req.Coords,
		Certifications:     req.Certifications,
		AvailableFrom:      req.AvailableFrom,
		ExpiresOn:          req.ExpiresOn,
		PickupRequirements: req.PickupRequirements,
		Documents:          req.Documents,
		Thumbnail:          req.Thumbnail,
	}
}

// listingFilter reads category, status, location and minQuantity.
func listingFilter(r *http.Request) (domain.ListingFilter, bool) {
	q := r.URL.Query()
	filter := domain.ListingFilter{
		Category: domain.Category(q.Get("category")),
		Location: q.Get("location"),
	}
	if raw := q.Get("status"); raw != "" {
		filter.Status = domain.ListingStatus(raw)
		if !filter.Status.Valid() {
			return domain.ListingFilter{}, false
		}
	}
	if raw := q.Get("minQuantity"); raw != "" {
		minQty, err := decimal.NewFromString(raw)
		if err != nil || minQty.IsNegative() {
			return domain.ListingFilter{}, false
		}
		filter.MinQuantity = &minQty
	}
	return filter, true
}

func handleListListings(svc ListingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		filter, ok := listingFilter(r)
		if !ok {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, "invalid listing filter")
			return
		}
		listings, err := svc.ListVisible(r.Context(), actor, filter)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Listings(r.Context(), actor, listings))
	}
}

func handleMyListings(svc ListingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		listings, err := svc.ListMine(r.Context(), actor)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Listings(r.Context(), actor, listings))
	}
}

func handleCreateListing(svc ListingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req createListingRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		listing, err := svc.Create(r.Context(), actor, req.input())
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, env.render.Listing(r.Context(), actor, listing))
	}
}

func handleGetListing(svc ListingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		listing, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Listing(r.Context(), actor, listing))
	}
}

func handleUpdateListing(svc ListingService, env env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req updateListingRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		listing, err := svc.Update(r.Context(), actor, id, req.input())
		if err != nil {
			writeServiceError(w, r, env.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, env.render.Listing(r.Context(), actor, listing))
	}
}

func handleDeleteListing(svc ListingService, env env) http.HandlerFunc {
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
