// Package fanout consumes committed domain events and turns them into
// realtime pushes and status history entries. It runs as its own task so
// that neither a slow socket nor the history store can hold up a request.
package fanout

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
	"github.com/tuniwaste/exchange/internal/view"
)

const DefaultBuffer = 1024

const (
	EventNewMessage         = "new-message"
	EventMessageReceived    = "message-received"
	EventThreadRead         = "thread-read"
	EventNotification       = "notification"
	EventBidPlaced          = "bid-placed"
	EventBidUpdated         = "bid-updated"
	EventTransactionUpdated = "transaction-updated"
)

// Emitter is the subset of the realtime hub the dispatcher pushes to.
type Emitter interface {
	EmitToUser(userID, event string, data any) int
	EmitToThread(threadID, event string, data any) int
}

// HistoryRecorder persists status transitions.
type HistoryRecorder interface {
	Record(ctx context.Context, change domain.StatusChange) error
}

type Option func(*Dispatcher)

func WithBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.buffer = n
		}
	}
}

func WithHistory(h HistoryRecorder) Option {
	return func(d *Dispatcher) { d.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// Dispatcher implements app.Publisher. Publish never blocks; events that
// do not fit in the buffer are dropped.
type Dispatcher struct {
	events  chan domain.Event
	buffer  int
	emit    Emitter
	render  *view.Renderer
	history HistoryRecorder
	clock   clock.Clock
	logger  *slog.Logger
	dropped atomic.Uint64
}

func New(emit Emitter, render *view.Renderer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		buffer: DefaultBuffer,
		emit:   emit,
		render: render,
		clock:  clock.NewSystem(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.render == nil {
		d.render = view.NewRenderer(nil, nil, d.logger)
	}
	d.events = make(chan domain.Event, d.buffer)
	return d
}

func (d *Dispatcher) Publish(_ context.Context, ev domain.Event) {
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("fanout buffer full, event dropped", "event", ev.EventName())
	}
}

// Dropped reports how many events Publish discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run consumes events until ctx is done, then handles whatever is still
// buffered before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("fanout started", "buffer", d.buffer)
	for {
		select {
		case ev := <-d.events:
			d.handle(ctx, ev)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			d.logger.Info("fanout stopped")
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.handle(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev domain.Event) {
	switch e := ev.(type) {
	case domain.MessageSent:
		d.messageSent(ctx, e)
	case domain.ThreadRead:
		d.emit.EmitToThread(e.Thread.ID, EventThreadRead, map[string]string{
			"threadId": e.Thread.ID,
			"userId":   e.Reader,
		})
	case domain.NotificationCreated:
		d.emit.EmitToUser(e.Notification.RecipientID, EventNotification, view.NewNotification(e.Notification))
	case domain.BidPlaced:
		d.bidPlaced(ctx, e)
	case domain.BidAccepted:
		d.bidAccepted(ctx, e)
	case domain.BidDeclined:
		d.bidDeclined(ctx, e)
	case domain.StageAdvanced:
		d.stageAdvanced(ctx, e)
	case domain.DocumentAttached:
		d.transactionUpdated(ctx, e.Transaction, e.ActorID)
	default:
		d.logger.Debug("fanout ignored event", "event", ev.EventName())
	}
}

func (d *Dispatcher) messageSent(ctx context.Context, e domain.MessageSent) {
	msg := d.render.Message(ctx, view.Nobody, e.Message)
	d.emit.EmitToThread(e.Thread.ID, EventNewMessage, msg)

	other := e.Thread.Other(e.Message.SenderID)
	if other == "" {
		return
	}
	n := d.emit.EmitToUser(other, EventMessageReceived, map[string]any{
		"threadId": e.Thread.ID,
		"message":  msg,
	})
	if n == 0 {
		d.logger.Debug("message push not delivered", "thread_id", e.Thread.ID, "user_id", other)
	}
}

func (d *Dispatcher) bidPlaced(ctx context.Context, e domain.BidPlaced) {
	seller := recipient(e.Listing.SellerID, domain.RoleGenerator)
	d.emit.EmitToUser(seller.ID, EventBidPlaced, map[string]any{
		"listingId": e.Listing.ID,
		"bid":       d.render.Bid(ctx, seller, e.Bid),
	})
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefBid,
		EntityID:   e.Bid.ID,
		To:         string(e.Bid.Status),
		ActorID:    e.Bid.BidderID,
	})
}

func (d *Dispatcher) bidAccepted(ctx context.Context, e domain.BidAccepted) {
	d.bidUpdated(ctx, e.Bid)
	for _, b := range e.Declined {
		d.bidUpdated(ctx, b)
	}
	d.transactionUpdated(ctx, e.Transaction, e.Listing.SellerID)

	actor := e.Listing.SellerID
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefBid,
		EntityID:   e.Bid.ID,
		From:       string(domain.BidStatusPending),
		To:         string(domain.BidStatusAccepted),
		ActorID:    actor,
	})
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefListing,
		EntityID:   e.Listing.ID,
		From:       string(domain.ListingStatusOpen),
		To:         string(e.Listing.Status),
		ActorID:    actor,
		Note:       "bid " + e.Bid.ID + " accepted",
	})
	for _, b := range e.Declined {
		d.record(ctx, domain.StatusChange{
			EntityKind: domain.RefBid,
			EntityID:   b.ID,
			From:       string(domain.BidStatusPending),
			To:         string(domain.BidStatusDeclined),
			ActorID:    actor,
			Note:       "another bid was accepted",
		})
	}
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefTransaction,
		EntityID:   e.Transaction.ID,
		To:         string(e.Transaction.Stage),
		ActorID:    actor,
	})
}

func (d *Dispatcher) bidDeclined(ctx context.Context, e domain.BidDeclined) {
	d.bidUpdated(ctx, e.Bid)
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefBid,
		EntityID:   e.Bid.ID,
		From:       string(domain.BidStatusPending),
		To:         string(domain.BidStatusDeclined),
		ActorID:    e.Listing.SellerID,
	})
}

func (d *Dispatcher) bidUpdated(ctx context.Context, b domain.Bid) {
	bidder := recipient(b.BidderID, domain.RoleBuyer)
	d.emit.EmitToUser(bidder.ID, EventBidUpdated, d.render.Bid(ctx, bidder, b))
}

func (d *Dispatcher) stageAdvanced(ctx context.Context, e domain.StageAdvanced) {
	d.transactionUpdated(ctx, e.Transaction, e.ActorID)
	d.record(ctx, domain.StatusChange{
		EntityKind: domain.RefTransaction,
		EntityID:   e.Transaction.ID,
		From:       string(e.From),
		To:         string(e.Transaction.Stage),
		ActorID:    e.ActorID,
	})
}

// transactionUpdated tells the party that did not cause the change.
func (d *Dispatcher) transactionUpdated(ctx context.Context, t domain.Transaction, actorID string) {
	other := t.Counterparty(actorID)
	if other == "" {
		return
	}
	role := domain.RoleBuyer
	if other == t.SellerID {
		role = domain.RoleGenerator
	}
	d.emit.EmitToUser(other, EventTransactionUpdated, d.render.Transaction(ctx, recipient(other, role), t))
}

func (d *Dispatcher) record(ctx context.Context, change domain.StatusChange) {
	if d.history == nil {
		return
	}
	if change.At.IsZero() {
		change.At = d.clock.Now()
	}
	if err := d.history.Record(ctx, change); err != nil {
		d.logger.Warn("record status change",
			"entity", change.EntityKind,
			"entity_id", change.EntityID,
			"error", err,
		)
	}
}

func recipient(id string, role domain.Role) domain.User {
	return domain.User{ID: id, Role: role}
}
