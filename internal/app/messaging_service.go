package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuniwaste/exchange/internal/clock"
	"github.com/tuniwaste/exchange/internal/domain"
)

// MessagingService covers threads and the messages inside them.
type MessagingService struct {
	base
}

func NewMessagingService(repos Repositories, clk clock.Clock, opts ...Option) *MessagingService {
	return &MessagingService{base: newBase(repos, clk, opts)}
}

func (s *MessagingService) ListThreads(ctx context.Context, actor domain.User) ([]domain.ThreadSummary, error) {
	return s.repos.Threads.ListThreadSummaries(ctx, actor.ID)
}

type CreateThreadInput struct {
	OtherUserID string
	ListingID   string
}

// CreateThread finds or creates the thread between the caller and another
// user, optionally scoped to a listing.
func (s *MessagingService) CreateThread(ctx context.Context, actor domain.User, in CreateThreadInput) (domain.Thread, bool, error) {
	if !validID(in.OtherUserID) {
		return domain.Thread{}, false, domain.ErrInvalidID
	}
	if in.ListingID != "" && !validID(in.ListingID) {
		return domain.Thread{}, false, domain.ErrInvalidID
	}
	if in.OtherUserID == actor.ID {
		return domain.Thread{}, false, domain.ErrSelfThread
	}

	var (
		thread  domain.Thread
		created bool
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repos.Users.GetUser(txCtx, in.OtherUserID); err != nil {
			return err
		}
		if in.ListingID != "" {
			if _, err := s.repos.Listings.GetListing(txCtx, in.ListingID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		var err error
		thread, created, err = s.repos.Threads.FindOrCreateThread(txCtx, domain.Thread{
			ID:            newID(),
			Participants:  domain.OrderedPair(actor.ID, in.OtherUserID),
			ListingID:     in.ListingID,
			LastMessageAt: now,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		return domain.Thread{}, false, err
	}
	return thread, created, nil
}

// Participants returns the immutable participant pair of a thread.
func (s *MessagingService) Participants(ctx context.Context, threadID string) ([2]string, error) {
	if !validID(threadID) {
		return [2]string{}, domain.ErrInvalidID
	}
	thread, err := s.repos.Threads.GetThread(ctx, threadID)
	if err != nil {
		return [2]string{}, err
	}
	return thread.Participants, nil
}

func (s *MessagingService) Messages(ctx context.Context, actor domain.User, threadID string) ([]domain.Message, error) {
	if _, err := s.threadFor(ctx, actor, threadID); err != nil {
		return nil, err
	}
	return s.repos.Messages.ListMessages(ctx, threadID)
}

type SendMessageInput struct {
	ThreadID    string
	Body        string
	Attachments []string
}

// Send appends a message, refreshes the thread preview and writes the
// outbox entry for the other participant in one transaction. Realtime
// delivery happens after commit through the publisher.
func (s *MessagingService) Send(ctx context.Context, actor domain.User, in SendMessageInput) (domain.Message, error) {
	if !validID(in.ThreadID) {
		return domain.Message{}, domain.ErrInvalidID
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return domain.Message{}, domain.ErrEmptyBody
	}
	for _, name := range in.Attachments {
		if !validDocumentName(name) {
			return domain.Message{}, domain.ErrInvalidDocument
		}
	}

	var (
		msg    domain.Message
		thread domain.Thread
		note   domain.Notification
	)
	err := s.repos.Tx.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		// The row lock orders concurrent sends on the same thread.
		thread, err = s.repos.Threads.GetThreadForUpdate(txCtx, in.ThreadID)
		if err != nil {
			return err
		}
		if !thread.HasParticipant(actor.ID) {
			return domain.ErrNotParticipant
		}

		sentAt := s.clock.Now()
		if sentAt.Before(thread.LastMessageAt) {
			sentAt = thread.LastMessageAt
		}
		msg = domain.Message{
			ID:          newID(),
			ThreadID:    thread.ID,
			SenderID:    actor.ID,
			Body:        body,
			SentAt:      sentAt,
			Attachments: nonNil(in.Attachments),
			ReadBy:      []string{},
			SenderRole:  actor.Role,
		}
		if err := s.repos.Messages.CreateMessage(txCtx, msg); err != nil {
			return err
		}

		thread.LastMessage = body
		thread.LastMessageAt = sentAt
		if err := s.repos.Threads.UpdateThreadPreview(txCtx, thread.ID, body, sentAt); err != nil {
			return err
		}

		note, err = s.notify(txCtx, thread.Other(actor.ID), domain.NotificationMessage,
			"New message",
			fmt.Sprintf("You have a new message from %s.", actor.Role.Label()),
			domain.MessageRef(msg.ID),
		)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}

	s.publish(ctx,
		domain.MessageSent{Message: msg, Thread: thread},
		domain.NotificationCreated{Notification: note},
	)
	return msg, nil
}

func (s *MessagingService) MarkMessageRead(ctx context.Context, actor domain.User, messageID string) error {
	if !validID(messageID) {
		return domain.ErrInvalidID
	}
	msg, err := s.repos.Messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := s.threadFor(ctx, actor, msg.ThreadID); err != nil {
		return err
	}
	if msg.SenderID == actor.ID {
		return nil
	}
	return s.repos.Messages.AddReader(ctx, messageID, actor.ID)
}

// MarkThreadRead marks every message the caller did not send as read by
// the caller. The other participant's read state is untouched.
func (s *MessagingService) MarkThreadRead(ctx context.Context, actor domain.User, threadID string) (int, error) {
	thread, err := s.threadFor(ctx, actor, threadID)
	if err != nil {
		return 0, err
	}
	n, err := s.repos.Messages.MarkThreadRead(ctx, threadID, actor.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, domain.ThreadRead{Thread: thread, Reader: actor.ID})
	}
	return n, nil
}

func (s *MessagingService) threadFor(ctx context.Context, actor domain.User, threadID string) (domain.Thread, error) {
	if !validID(threadID) {
		return domain.Thread{}, domain.ErrInvalidID
	}
	thread, err := s.repos.Threads.GetThread(ctx, threadID)
	if err != nil {
		return domain.Thread{}, err
	}
	if !thread.HasParticipant(actor.ID) {
		return domain.Thread{}, domain.ErrNotParticipant
	}
	return thread, nil
}
