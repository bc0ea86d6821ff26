package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

// ListingService owns the listing lifecycle apart from reservation, which
// happens inside bid acceptance.
type ListingService struct {
	base
}

func NewListingService(repos Repositories, clk clock.Clock, opts ...Option) *ListingService {
	return &ListingService{base: newBase(repos, clk, opts)}
}

type CreateListingInput struct {
	Title              string
	Material           string
	Category           domain.Category
	QuantityTons       decimal.Decimal
	PricePerTon        decimal.Decimal
	Location           string
	Coords             domain.Coords
	Certifications     []string
	AvailableFrom      time.Time
	ExpiresOn          time.Time
	PickupRequirements string
	Documents          []string
	Thumbnail          string
}

func (in CreateListingInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return domain.ErrTitleRequired
	}
	if strings.TrimSpace(in.Material) == "" {
		return domain.ErrMaterialRequired
	}
	if !in.Category.Valid() {
		return domain.ErrInvalidCategory
	}
	if !in.QuantityTons.IsPositive() {
		return domain.ErrInvalidQuantity
	}
	if in.PricePerTon.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if strings.TrimSpace(in.Location) == "" {
		return domain.ErrLocationRequired
	}
	if !in.Coords.Valid() {
		return domain.ErrInvalidCoords
	}
	return nil
}

func (s *ListingService) Create(ctx context.Context, actor domain.User, in CreateListingInput) (domain.Listing, error) {
	if actor.Role != domain.RoleGenerator {
		return domain.Listing{}, domain.ErrRoleNotAllowed
	}
	if !actor.Verified {
		return domain.Listing{}, domain.ErrUnverified
	}
	if err := in.validate(); err != nil {
		return domain.Listing{}, err
	}

	now := s.clock.Now()
	listing := domain.Listing{
		ID:                 newID(),
		SellerID:           actor.ID,
		Title:              strings.TrimSpace(in.Title),
		Material:           strings.TrimSpace(in.Material),
		Category:           in.Category,
		QuantityTons:       in.QuantityTons,
		PricePerTon:        in.PricePerTon,
		Location:           strings.TrimSpace(in.Location),
		Coords:             in.Coords,
		Certifications:     nonNil(in.Certifications),
		AvailableFrom:      in.AvailableFrom,
		ExpiresOn:          in.ExpiresOn,
		PickupRequirements: in.PickupRequirements,
		Documents:          nonNil(in.Documents),
		Thumbnail:          in.Thumbnail,
		Status:             domain.ListingStatusOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repos.Listings.CreateListing(ctx, listing); err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

// UpdateListingInput carries optional field changes; nil means unchanged.
type UpdateListingInput struct {
	Title              *string
	Material           *string
	Category           *domain.Category
	QuantityTons       *decimal.Decimal
	PricePerTon        *decimal.Decimal
	Location           *string
	Coords             *domain.Coords
	Certifications     []string
	AvailableFrom      *time.Time
	ExpiresOn          *time.Time
	PickupRequirements *string
	Documents          []string
	Thumbnail          *string
}

func (in UpdateListingInput) apply(l *domain.Listing) error {
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return domain.ErrTitleRequired
		}
		l.Title = strings.TrimSpace(*in.Title)
	}
	if in.Material != nil {
		if strings.TrimSpace(*in.Material) == "" {
			return domain.ErrMaterialRequired
		}
		l.Material = strings.TrimSpace(*in.Material)
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return domain.ErrInvalidCategory
		}
		l.Category = *in.Category
	}
	if in.QuantityTons != nil {
		if !in.QuantityTons.IsPositive() {
			return domain.ErrInvalidQuantity
		}
		l.QuantityTons = *in.QuantityTons
	}
	if in.PricePerTon != nil {
		if in.PricePerTon.IsNegative() {
			return domain.ErrInvalidPrice
		}
		l.PricePerTon = *in.PricePerTon
	}
	if in.Location != nil {
		if strings.TrimSpace(*in.Location) == "" {
			return domain.ErrLocationRequired
		}
		l.Location = strings.TrimSpace(*in.Location)
	}
	if in.Coords != nil {
		if !in.Coords.Valid() {
			return domain.ErrInvalidCoords
		}
		l.Coords = *in.Coords
	}
	if in.Certifications != nil {
		l.Certifications = in.Certifications
	}
	if in.AvailableFrom != nil {
		l.AvailableFrom = *in.AvailableFrom
	}
	if in.ExpiresOn != nil {
		l.ExpiresOn = *in.ExpiresOn
	}
	if in.PickupRequirements != nil {
		l.PickupRequirements = *in.PickupRequirements
	}
	if in.Documents != nil {
		l.Documents = in.Documents
	}
	if in.Thumbnail != nil {
		l.Thumbnail = *in.Thumbnail
	}
	return nil
}

func (s *ListingService) Update(ctx context.Context, actor domain.User, id string, in UpdateListingInput) (domain.Listing, error) {
	if !validID(id) {
		return domain.Listing{}, domain.ErrInvalidID
	}

	var result domain.Listing
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repos.Listings.GetListingForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if listing.SellerID != actor.ID {
			return domain.ErrNotOwner
		}
		if listing.Status == domain.ListingStatusAwarded {
			return domain.ErrListingAwarded
		}
		if err := in.apply(&listing); err != nil {
			return err
		}
		listing.UpdatedAt = s.clock.Now()
		if err := s.repos.Listings.UpdateListing(txCtx, listing); err != nil {
			return err
		}
		result = listing
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return result, nil
}

// Delete removes an open listing together with its bids. Listings that
// already back a transaction stay.
func (s *ListingService) Delete(ctx context.Context, actor domain.User, id string) error {
	if !validID(id) {
		return domain.ErrInvalidID
	}
	return s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.repos.Listings.GetListingForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if listing.SellerID != actor.ID {
			return domain.ErrNotOwner
		}
		if listing.Status != domain.ListingStatusOpen {
			return domain.ErrListingLocked
		}
		return s.repos.Listings.DeleteListing(txCtx, id)
	})
}

func (s *ListingService) Get(ctx context.Context, _ domain.User, id string) (domain.Listing, error) {
	if !validID(id) {
		return domain.Listing{}, domain.ErrInvalidID
	}
	return s.repos.Listings.GetListing(ctx, id)
}

func (s *ListingService) ListMine(ctx context.Context, actor domain.User) ([]domain.Listing, error) {
	if actor.Role != domain.RoleGenerator {
		return nil, domain.ErrRoleNotAllowed
	}
	return s.repos.Listings.ListListings(ctx, domain.ListingFilter{SellerID: actor.ID})
}

// ListVisible applies the role scope on top of the caller's filter:
// generators only see their own listings, buyers only see open ones.
func (s *ListingService) ListVisible(ctx context.Context, actor domain.User, filter domain.ListingFilter) ([]domain.Listing, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, domain.ErrInvalidCategory
	}
	switch actor.Role {
	case domain.RoleGenerator:
		filter.SellerID = actor.ID
	case domain.RoleBuyer:
		filter.Status = domain.ListingStatusOpen
	}
	return s.repos.Listings.ListListings(ctx, filter)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
