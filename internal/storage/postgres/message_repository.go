package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type MessageRepository struct {
	db
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db{pool: pool}}
}

// Read receipts live in message_reads; readers are aggregated back into
// ReadBy, and the sender's role is joined in for labelling.
const messageSelect = `
SELECT m.id, m.thread_id, m.sender_id, m.body, m.sent_at, m.attachments,
	COALESCE(ARRAY(SELECT mr.user_id::text FROM message_reads mr WHERE mr.message_id = m.id ORDER BY mr.read_at, mr.user_id), '{}'),
	u.role
FROM messages m
JOIN users u ON u.id = m.sender_id`

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Body, &m.SentAt, &m.Attachments, &m.ReadBy, &m.SenderRole)
	if err != nil {
		return domain.Message{}, err
	}
	m.SentAt = m.SentAt.UTC()
	return m, nil
}

func (r *MessageRepository) CreateMessage(ctx context.Context, m domain.Message) error {
	const stmt = `
INSERT INTO messages (id, thread_id, sender_id, body, attachments, sent_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	attachments := m.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	_, err := r.exec(ctx, stmt, m.ID, m.ThreadID, m.SenderID, m.Body, attachments, m.SentAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			if constraintName(err) == "messages_sender_id_fkey" {
				return domain.ErrUserNotFound
			}
			return domain.ErrThreadNotFound
		}
		return wrap("create message", err)
	}
	return nil
}

func (r *MessageRepository) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	m, err := scanMessage(r.queryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Message{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, domain.ErrMessageNotFound
		}
		return domain.Message{}, wrap("get message", err)
	}
	return m, nil
}

// ListMessages returns the thread's messages in send order.
func (r *MessageRepository) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	rows, err := r.query(ctx, messageSelect+` WHERE m.thread_id = $1 ORDER BY m.sent_at, m.seq`, threadID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, wrap("scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list messages", err)
	}
	return out, nil
}

func (r *MessageRepository) AddReader(ctx context.Context, messageID, userID string) error {
	const stmt = `
INSERT INTO message_reads (message_id, user_id)
VALUES ($1, $2)
ON CONFLICT (message_id, user_id) DO NOTHING`

	if _, err := r.exec(ctx, stmt, messageID, userID); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			if constraintName(err) == "message_reads_user_id_fkey" {
				return domain.ErrUserNotFound
			}
			return domain.ErrMessageNotFound
		}
		return wrap("add reader", err)
	}
	return nil
}

// MarkThreadRead records userID as reader of every message in the thread it
// did not send and has not read yet, returning how many were marked.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string) (int, error) {
	const stmt = `
INSERT INTO message_reads (message_id, user_id)
SELECT m.id, $2::uuid
FROM messages m
WHERE m.thread_id = $1 AND m.sender_id <> $2::uuid
ON CONFLICT (message_id, user_id) DO NOTHING`

	tag, err := r.exec(ctx, stmt, threadID, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return 0, domain.ErrUserNotFound
		}
		return 0, wrap("mark thread read", err)
	}
	return int(tag.RowsAffected()), nil
}
