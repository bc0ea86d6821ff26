package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tuniwaste/exchange/internal/view"
)

// NotificationEndpoints covers the recipient endpoints and the admin push.
type NotificationEndpoints interface {
	NotificationService
	NotificationPusher
}

type RouterConfig struct {
	Listings      ListingService
	Bids          BidService
	Transactions  TransactionService
	Messaging     MessagingService
	Notifications NotificationEndpoints

	Auth     Authenticator
	Users    UserRecorder
	Renderer *view.Renderer
	// Realtime is mounted at /ws and authenticates on its own.
	Realtime http.Handler
	// History is optional; without it the history endpoint answers 503.
	History     HistoryReader
	Health      Pinger
	CORSOrigins []string
	Logger      *slog.Logger
}

// env carries what every handler needs besides its service.
type env struct {
	render *view.Renderer
	logger *slog.Logger
}

// NewRouter wires every endpoint and wraps the result in CORS and request
// logging.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	render := cfg.Renderer
	if render == nil {
		render = view.NewRenderer(nil, nil, logger)
	}
	e := env{render: render, logger: logger}

	r := mux.NewRouter()
	r.NotFoundHandler = NotFoundHandler()
	r.MethodNotAllowedHandler = MethodNotAllowedHandler()

	r.Handle("/health", HandleHealth(cfg.Health)).Methods(http.MethodGet)
	if cfg.Realtime != nil {
		r.Handle("/ws", cfg.Realtime)
	}

	// Authenticated routes sit on the root router so that a method
	// mismatch still reaches MethodNotAllowedHandler.
	api := func(path string, h http.Handler) *mux.Route {
		return r.Handle("/api"+path, RequireUser(cfg.Auth, cfg.Users, logger, h))
	}

	api("/listings", handleListListings(cfg.Listings, e)).Methods(http.MethodGet)
	api("/listings", handleCreateListing(cfg.Listings, e)).Methods(http.MethodPost)
	api("/listings/mine", handleMyListings(cfg.Listings, e)).Methods(http.MethodGet)
	api("/listings/{id}", handleGetListing(cfg.Listings, e)).Methods(http.MethodGet)
	api("/listings/{id}", handleUpdateListing(cfg.Listings, e)).Methods(http.MethodPatch, http.MethodPut)
	api("/listings/{id}", handleDeleteListing(cfg.Listings, e)).Methods(http.MethodDelete)
	api("/listings/{id}/bids", handleListingBids(cfg.Bids, e)).Methods(http.MethodGet)

	api("/bids", handlePlaceBid(cfg.Bids, e)).Methods(http.MethodPost)
	api("/bids/mine", handleMyBids(cfg.Bids, e)).Methods(http.MethodGet)
	api("/bids/{id}/accept", handleAcceptBid(cfg.Bids, e)).Methods(http.MethodPost)
	api("/bids/{id}/decline", handleDeclineBid(cfg.Bids, e)).Methods(http.MethodPost)

	api("/transactions", handleMyTransactions(cfg.Transactions, e)).Methods(http.MethodGet)
	api("/transactions/{id}", handleGetTransaction(cfg.Transactions, e)).Methods(http.MethodGet)
	api("/transactions/{id}/stage", handleAdvanceStage(cfg.Transactions, e)).Methods(http.MethodPatch)
	api("/transactions/{id}/documents", handleAttachDocument(cfg.Transactions, e)).Methods(http.MethodPost)

	api("/threads", handleListThreads(cfg.Messaging, e)).Methods(http.MethodGet)
	api("/threads", handleCreateThread(cfg.Messaging, e)).Methods(http.MethodPost)
	api("/threads/{id}/messages", handleThreadMessages(cfg.Messaging, e)).Methods(http.MethodGet)
	api("/threads/{id}/messages", handleSendMessage(cfg.Messaging, e)).Methods(http.MethodPost)
	api("/threads/{id}/read", handleMarkThreadRead(cfg.Messaging, e)).Methods(http.MethodPatch, http.MethodPost)
	api("/messages/{id}/read", handleMarkMessageRead(cfg.Messaging, e)).Methods(http.MethodPatch, http.MethodPost)

	api("/notifications", handleListNotifications(cfg.Notifications, e)).Methods(http.MethodGet)
	api("/notifications/unread-count", handleUnreadCount(cfg.Notifications, e)).Methods(http.MethodGet)
	api("/notifications/read-all", handleMarkAllNotificationsRead(cfg.Notifications, e)).Methods(http.MethodPatch)
	api("/notifications/{id}/read", handleMarkNotificationRead(cfg.Notifications, e)).Methods(http.MethodPatch)
	api("/notifications/{id}", handleDeleteNotification(cfg.Notifications, e)).Methods(http.MethodDelete)

	api("/admin/notifications", handleAdminPush(cfg.Notifications, e)).Methods(http.MethodPost)
	api("/admin/history/{kind}/{id}", handleAdminHistory(cfg.History, e)).Methods(http.MethodGet)

	return RequestLogger(CORS(cfg.CORSOrigins, r), logger)
}
