package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type NotificationRepository struct {
	db
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db{pool: pool}}
}

const notificationColumns = `id, recipient_id, type, title, detail, related_kind, related_id, read, created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n         domain.Notification
		relatedID *string
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Detail, &n.Related.Kind, &relatedID, &n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	if relatedID != nil {
		n.Related.ID = *relatedID
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n domain.Notification) error {
	const stmt = `INSERT INTO notifications (` + notificationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		n.ID, n.RecipientID, n.Type, n.Title, n.Detail, n.Related.Kind, nullID(n.Related.ID), n.Read, n.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return wrap("create notification", err)
	}
	return nil
}

func (r *NotificationRepository) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	n, err := scanNotification(r.queryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Notification{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, domain.ErrNotificationNotFound
		}
		return domain.Notification{}, wrap("get notification", err)
	}
	return n, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]domain.Notification, error) {
	const query = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE recipient_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

	rows, err := r.query(ctx, query, recipientID, limit, offset)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list notifications", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, wrap("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list notifications", err)
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, recipientID).Scan(&n)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, wrap("count unread", err)
	}
	return n, nil
}

func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int, error) {
	tag, err := r.exec(ctx, `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, wrap("mark all notifications read", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *NotificationRepository) DeleteNotification(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}
