package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

// fataler is the part of testing.TB that rapid.T also provides.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	pub   *recordingPublisher
	clock *clock.Stepping

	listings      *ListingService
	bids          *BidService
	transactions  *TransactionService
	messaging     *MessagingService
	notifications *NotificationService

	seller domain.User
	buyer  domain.User
	buyer2 domain.User
	admin  domain.User
}

func newFixture(t fataler) *fixture {
	t.Helper()

	store := newMemStore()
	pub := &recordingPublisher{}
	clk := clock.NewStepping(testEpoch, time.Second)
	repos := store.repos()

	f := &fixture{
		store:         store,
		pub:           pub,
		clock:         clk,
		listings:      NewListingService(repos, clk, WithPublisher(pub)),
		bids:          NewBidService(repos, clk, WithPublisher(pub)),
		transactions:  NewTransactionService(repos, clk, WithPublisher(pub)),
		messaging:     NewMessagingService(repos, clk, WithPublisher(pub)),
		notifications: NewNotificationService(repos, clk, WithPublisher(pub)),
		seller:        testUser(domain.RoleGenerator, "Sfax Metals"),
		buyer:         testUser(domain.RoleBuyer, "Recyclo"),
		buyer2:        testUser(domain.RoleBuyer, "Green Loop"),
		admin:         testUser(domain.RoleAdmin, "Ops"),
	}
	users := NewUserService(store)
	for _, u := range []domain.User{f.seller, f.buyer, f.buyer2, f.admin} {
		if err := users.Remember(context.Background(), u); err != nil {
			t.Fatalf("remember user: %v", err)
		}
	}
	return f
}

func testUser(role domain.Role, company string) domain.User {
	return domain.User{ID: uuid.NewString(), Role: role, Company: company, Verified: true}
}

func listingInput(title string, tons int64, price string) CreateListingInput {
	return CreateListingInput{
		Title:        title,
		Material:     "Aluminium offcuts",
		Category:     domain.CategoryMetals,
		QuantityTons: decimal.NewFromInt(tons),
		PricePerTon:  decimal.RequireFromString(price),
		Location:     "Sfax",
		Coords:       domain.Coords{10.76, 34.74},
	}
}

func (f *fixture) listing(t fataler, title string, tons int64) domain.Listing {
	t.Helper()
	l, err := f.listings.Create(context.Background(), f.seller, listingInput(title, tons, "100"))
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func (f *fixture) bid(t fataler, buyer domain.User, listingID, amount string) domain.Bid {
	t.Helper()
	b, err := f.bids.Place(context.Background(), buyer, PlaceBidInput{
		ListingID: listingID,
		Amount:    decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	return b
}
