package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingStatusOpen     ListingStatus = "open"
	ListingStatusReserved ListingStatus = "reserved"
	ListingStatusAwarded  ListingStatus = "awarded"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusOpen, ListingStatusReserved, ListingStatusAwarded:
		return true
	}
	return false
}

type Category string

const (
	CategoryMetals       Category = "metals"
	CategoryPlastics     Category = "plastics"
	CategoryChemicals    Category = "chemicals"
	CategoryOrganics     Category = "organics"
	CategoryConstruction Category = "construction"
	CategoryTextiles     Category = "textiles"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMetals, CategoryPlastics, CategoryChemicals, CategoryOrganics, CategoryConstruction, CategoryTextiles:
		return true
	}
	return false
}

// Coords is a [longitude, latitude] pair.
type Coords [2]float64

func (c Coords) Valid() bool {
	return c[0] >= -180 && c[0] <= 180 && c[1] >= -90 && c[1] <= 90
}

// Listing is a batch of waste material offered by a generator.
type Listing struct {
	ID                 string
	SellerID           string
	Title              string
	Material           string
	Category           Category
	QuantityTons       decimal.Decimal
	PricePerTon        decimal.Decimal
	Location           string
	Coords             Coords
	Certifications     []string
	AvailableFrom      time.Time
	ExpiresOn          time.Time
	PickupRequirements string
	Documents          []string
	Thumbnail          string
	Status             ListingStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ListingFilter narrows listing queries. Zero values mean "any".
type ListingFilter struct {
	SellerID    string
	Status      ListingStatus
	Category    Category
	Location    string
	MinQuantity *decimal.Decimal
}
