package app

import (
	"context"
	"strings"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationService struct {
	base
}

func NewNotificationService(repos Repositories, clk clock.Clock, opts ...Option) *NotificationService {
	return &NotificationService{base: newBase(repos, clk, opts)}
}

type PushInput struct {
	RecipientID string
	Type        domain.NotificationType
	Title       string
	Detail      string
	Related     domain.Ref
}

// Push appends an outbox entry for a recipient that must exist.
func (s *NotificationService) Push(ctx context.Context, in PushInput) (domain.Notification, error) {
	if !validID(in.RecipientID) {
		return domain.Notification{}, domain.ErrInvalidID
	}
	if strings.TrimSpace(in.Title) == "" {
		return domain.Notification{}, domain.ErrTitleRequired
	}

	var note domain.Notification
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repos.Users.GetUser(txCtx, in.RecipientID); err != nil {
			return err
		}
		var err error
		note, err = s.notify(txCtx, in.RecipientID, in.Type, in.Title, in.Detail, in.Related)
		return err
	})
	if err != nil {
		return domain.Notification{}, err
	}
	s.publish(ctx, domain.NotificationCreated{Notification: note})
	return note, nil
}

// Page normalises 1-based page/limit query values.
func Page(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return page, limit
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor domain.User, page, limit int) ([]domain.Notification, error) {
	page, limit = Page(page, limit)
	return s.repos.Notifications.ListNotifications(ctx, actor.ID, limit, (page-1)*limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor domain.User) (int, error) {
	return s.repos.Notifications.CountUnread(ctx, actor.ID)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor domain.User, id string) (domain.Notification, error) {
	note, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if note.Read {
		return note, nil
	}
	if err := s.repos.Notifications.MarkNotificationRead(ctx, id); err != nil {
		return domain.Notification{}, err
	}
	note.Read = true
	return note, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor domain.User) (int, error) {
	return s.repos.Notifications.MarkAllNotificationsRead(ctx, actor.ID)
}

func (s *NotificationService) Delete(ctx context.Context, actor domain.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.repos.Notifications.DeleteNotification(ctx, id)
}

func (s *NotificationService) owned(ctx context.Context, actor domain.User, id string) (domain.Notification, error) {
	if !validID(id) {
		return domain.Notification{}, domain.ErrInvalidID
	}
	note, err := s.repos.Notifications.GetNotification(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if note.RecipientID != actor.ID {
		return domain.Notification{}, domain.ErrNotRecipient
	}
	return note, nil
}
