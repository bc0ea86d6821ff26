package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

// BidService owns the bid state machine. Acceptance fans out into the
// listing, transaction, thread and outbox writes inside one transaction.
type BidService struct {
	base
}

func NewBidService(repos Repositories, clk clock.Clock, opts ...Option) *BidService {
	return &BidService{base: newBase(repos, clk, opts)}
}

type PlaceBidInput struct {
	ListingID string
	Amount    decimal.Decimal
}

func (s *BidService) Place(ctx context.Context, actor domain.User, in PlaceBidInput) (domain.Bid, error) {
	if actor.Role != domain.RoleBuyer {
		return domain.Bid{}, domain.ErrRoleNotAllowed
	}
	if !validID(in.ListingID) {
		return domain.Bid{}, domain.ErrInvalidID
	}
	if !in.Amount.IsPositive() {
		return domain.Bid{}, domain.ErrInvalidAmount
	}

	var (
		bid     domain.Bid
		listing domain.Listing
		note    domain.Notification
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		// Lock the listing so a concurrent acceptance cannot reserve it
		// between the status check and the insert.
		listing, err = s.repos.Listings.GetListingForUpdate(txCtx, in.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID == actor.ID {
			return domain.ErrOwnListing
		}
		if listing.Status != domain.ListingStatusOpen {
			return domain.ErrListingNotOpen
		}

		bid = domain.Bid{
			ID:        newID(),
			ListingID: listing.ID,
			BidderID:  actor.ID,
			Amount:    in.Amount,
			Status:    domain.BidStatusPending,
			PlacedAt:  s.clock.Now(),
		}
		if err := s.repos.Bids.CreateBid(txCtx, bid); err != nil {
			return err
		}

		note, err = s.notify(txCtx, listing.SellerID, domain.NotificationBid,
			"New bid received",
			fmt.Sprintf("A buyer placed a bid of %s TND/ton on %s.", in.Amount.String(), listing.Title),
			domain.BidRef(bid.ID),
		)
		return err
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.publish(ctx,
		domain.BidPlaced{Bid: bid, Listing: listing},
		domain.NotificationCreated{Notification: note},
	)
	return bid, nil
}

type AcceptBidResult struct {
	Bid         domain.Bid
	Listing     domain.Listing
	Transaction domain.Transaction
	Thread      domain.Thread
	Declined    []domain.Bid
}

// Accept turns a pending bid into a transaction. The listing row is locked
// first, so two acceptances on the same listing serialize and the loser
// sees the listing as no longer open.
func (s *BidService) Accept(ctx context.Context, actor domain.User, bidID string) (AcceptBidResult, error) {
	if !validID(bidID) {
		return AcceptBidResult{}, domain.ErrInvalidID
	}

	var (
		result      AcceptBidResult
		threadIsNew bool
		note        domain.Notification
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		peek, err := s.repos.Bids.GetBid(txCtx, bidID)
		if err != nil {
			return err
		}
		listing, err := s.repos.Listings.GetListingForUpdate(txCtx, peek.ListingID)
		if err != nil {
			return err
		}
		bid, err := s.repos.Bids.GetBidForUpdate(txCtx, bidID)
		if err != nil {
			return err
		}
		if listing.SellerID != actor.ID {
			return domain.ErrNotOwner
		}
		if bid.Status != domain.BidStatusPending {
			return domain.ErrBidNotPending
		}
		if listing.Status != domain.ListingStatusOpen {
			return domain.ErrListingNotOpen
		}

		now := s.clock.Now()

		bid.Status = domain.BidStatusAccepted
		if err := s.repos.Bids.SetBidStatus(txCtx, bid.ID, bid.Status); err != nil {
			return err
		}

		listing.Status = domain.ListingStatusReserved
		listing.UpdatedAt = now
		if err := s.repos.Listings.SetListingStatus(txCtx, listing.ID, listing.Status, now); err != nil {
			return err
		}

		declined, err := s.repos.Bids.DeclinePendingBids(txCtx, listing.ID, bid.ID)
		if err != nil {
			return err
		}

		txn := domain.Transaction{
			ID:           newID(),
			ListingID:    listing.ID,
			BidID:        bid.ID,
			SellerID:     listing.SellerID,
			BuyerID:      bid.BidderID,
			Value:        bid.Amount.Mul(listing.QuantityTons),
			Stage:        domain.StageNegotiation,
			Documents:    []string{},
			CreatedAt:    now,
			UpdatedAt:    now,
			ListingTitle: listing.Title,
		}
		if err := s.repos.Transactions.CreateTransaction(txCtx, txn); err != nil {
			return err
		}

		thread, created, err := s.repos.Threads.FindOrCreateThread(txCtx, domain.Thread{
			ID:            newID(),
			Participants:  domain.OrderedPair(listing.SellerID, bid.BidderID),
			ListingID:     listing.ID,
			LastMessage:   fmt.Sprintf("Transaction started for %s", listing.Title),
			LastMessageAt: now,
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		threadIsNew = created

		note, err = s.notify(txCtx, bid.BidderID, domain.NotificationBid,
			"Bid accepted",
			fmt.Sprintf("Your bid on %s has been accepted. You can now message the seller.", listing.Title),
			domain.TransactionRef(txn.ID),
		)
		if err != nil {
			return err
		}

		result = AcceptBidResult{
			Bid:         bid,
			Listing:     listing,
			Transaction: txn,
			Thread:      thread,
			Declined:    declined,
		}
		return nil
	})
	if err != nil {
		return AcceptBidResult{}, err
	}

	s.publish(ctx,
		domain.BidAccepted{
			Bid:         result.Bid,
			Listing:     result.Listing,
			Declined:    result.Declined,
			Transaction: result.Transaction,
			Thread:      result.Thread,
			ThreadIsNew: threadIsNew,
		},
		domain.NotificationCreated{Notification: note},
	)
	return result, nil
}

func (s *BidService) Decline(ctx context.Context, actor domain.User, bidID string) (domain.Bid, error) {
	if !validID(bidID) {
		return domain.Bid{}, domain.ErrInvalidID
	}

	var (
		bid     domain.Bid
		listing domain.Listing
		note    domain.Notification
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		bid, err = s.repos.Bids.GetBidForUpdate(txCtx, bidID)
		if err != nil {
			return err
		}
		listing, err = s.repos.Listings.GetListing(txCtx, bid.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != actor.ID {
			return domain.ErrNotOwner
		}
		if bid.Status != domain.BidStatusPending {
			return domain.ErrBidNotPending
		}

		bid.Status = domain.BidStatusDeclined
		if err := s.repos.Bids.SetBidStatus(txCtx, bid.ID, bid.Status); err != nil {
			return err
		}

		note, err = s.notify(txCtx, bid.BidderID, domain.NotificationBid,
			"Bid declined",
			fmt.Sprintf("Your bid on %s has been declined.", listing.Title),
			domain.BidRef(bid.ID),
		)
		return err
	})
	if err != nil {
		return domain.Bid{}, err
	}

	s.publish(ctx,
		domain.BidDeclined{Bid: bid, Listing: listing},
		domain.NotificationCreated{Notification: note},
	)
	return bid, nil
}

func (s *BidService) ListForListing(ctx context.Context, _ domain.User, listingID string) ([]domain.Bid, error) {
	if !validID(listingID) {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repos.Listings.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	return s.repos.Bids.ListBidsByListing(ctx, listingID)
}

// ListMine returns a buyer's own bids, or the bids on a generator's listings.
func (s *BidService) ListMine(ctx context.Context, actor domain.User) ([]domain.Bid, error) {
	switch actor.Role {
	case domain.RoleBuyer:
		return s.repos.Bids.ListBidsByBidder(ctx, actor.ID)
	case domain.RoleGenerator:
		return s.repos.Bids.ListBidsBySeller(ctx, actor.ID)
	default:
		return nil, domain.ErrRoleNotAllowed
	}
}
