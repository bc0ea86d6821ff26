package app

import (
	"context"
	"time"

	"github.com/tuniwaste/exchange/internal/domain"
)

// Transactor runs fn in a single storage transaction. Nested calls join
// the outer transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
}

type ListingRepository interface {
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, id string) (domain.Listing, error)
	GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error)
	UpdateListing(ctx context.Context, listing domain.Listing) error
	SetListingStatus(ctx context.Context, id string, status domain.ListingStatus, at time.Time) error
	DeleteListing(ctx context.Context, id string) error
	ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error)
}

type BidRepository interface {
	CreateBid(ctx context.Context, bid domain.Bid) error
	GetBid(ctx context.Context, id string) (domain.Bid, error)
	GetBidForUpdate(ctx context.Context, id string) (domain.Bid, error)
	SetBidStatus(ctx context.Context, id string, status domain.BidStatus) error
	// DeclinePendingBids declines every pending bid on the listing except
	// the given one and returns the bids it changed.
	DeclinePendingBids(ctx context.Context, listingID, exceptBidID string) ([]domain.Bid, error)
	ListBidsByListing(ctx context.Context, listingID string) ([]domain.Bid, error)
	ListBidsByBidder(ctx context.Context, bidderID string) ([]domain.Bid, error)
	ListBidsBySeller(ctx context.Context, sellerID string) ([]domain.Bid, error)
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, txn domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error)
	UpdateTransactionStage(ctx context.Context, id string, stage domain.Stage, at time.Time) error
	AddTransactionDocument(ctx context.Context, id, document string, at time.Time) error
	ListTransactionsByParty(ctx context.Context, userID string) ([]domain.Transaction, error)
}

type ThreadRepository interface {
	// FindOrCreateThread inserts thread unless one already exists for the
	// same participant pair and listing, in which case the existing thread
	// is returned with created=false.
	FindOrCreateThread(ctx context.Context, thread domain.Thread) (domain.Thread, bool, error)
	GetThread(ctx context.Context, id string) (domain.Thread, error)
	GetThreadForUpdate(ctx context.Context, id string) (domain.Thread, error)
	UpdateThreadPreview(ctx context.Context, id, preview string, at time.Time) error
	ListThreadSummaries(ctx context.Context, userID string) ([]domain.ThreadSummary, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg domain.Message) error
	GetMessage(ctx context.Context, id string) (domain.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]domain.Message, error)
	AddReader(ctx context.Context, messageID, userID string) error
	MarkThreadRead(ctx context.Context, threadID, userID string) (int, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n domain.Notification) error
	GetNotification(ctx context.Context, id string) (domain.Notification, error)
	ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error)
	DeleteNotification(ctx context.Context, id string) error
}

// Repositories bundles the storage ports the services need. All of them
// must share the transaction carried by Tx.
type Repositories struct {
	Tx            Transactor
	Users         UserRepository
	Listings      ListingRepository
	Bids          BidRepository
	Transactions  TransactionRepository
	Threads       ThreadRepository
	Messages      MessageRepository
	Notifications NotificationRepository
}
