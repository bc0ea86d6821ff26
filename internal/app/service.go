package app

import (
	"context"
	"log/slog"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

// Publisher receives committed domain events. Implementations must not
// block; delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}

type Option func(*base)

// WithPublisher routes committed events to p.
func WithPublisher(p Publisher) Option {
	return func(b *base) {
		if p != nil {
			b.pub = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

type base struct {
	repos  Repositories
	clock  clock.Clock
	pub    Publisher
	logger *slog.Logger
}

func newBase(repos Repositories, clk clock.Clock, opts []Option) base {
	b := base{
		repos:  repos,
		clock:  clk,
		pub:    nopPublisher{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) publish(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		b.pub.Publish(ctx, ev)
	}
}

// notify appends an outbox entry. Callers run it inside the transaction of
// the write that caused it.
func (b base) notify(ctx context.Context, recipientID string, typ domain.NotificationType, title, detail string, ref domain.Ref) (domain.Notification, error) {
	if !typ.Valid() || !typ.Accepts(ref.Kind) {
		return domain.Notification{}, domain.ErrInvalidType
	}
	if !ref.Complete() || (ref.ID != "" && !validID(ref.ID)) {
		return domain.Notification{}, domain.ErrInvalidRef
	}
	n := domain.Notification{
		ID:          newID(),
		RecipientID: recipientID,
		Type:        typ,
		Title:       title,
		Detail:      detail,
		Related:     ref,
		CreatedAt:   b.clock.Now(),
	}
	if err := b.repos.Notifications.CreateNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}
