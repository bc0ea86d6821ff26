package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type ThreadRepository struct {
	db
}

func NewThreadRepository(pool *pgxpool.Pool) *ThreadRepository {
	return &ThreadRepository{db{pool: pool}}
}

const threadColumns = `id, participant_a, participant_b, listing_id, last_message, last_message_at, created_at`

func scanThread(row rowScanner, extra ...any) (domain.Thread, error) {
	var (
		t         domain.Thread
		listingID *string
	)
	dest := append([]any{
		&t.ID, &t.Participants[0], &t.Participants[1], &listingID, &t.LastMessage, &t.LastMessageAt, &t.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Thread{}, err
	}
	if listingID != nil {
		t.ListingID = *listingID
	}
	t.LastMessageAt = t.LastMessageAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

// FindOrCreateThread inserts t unless a thread for the same participant
// pair and listing exists, in which case the existing one is returned.
func (r *ThreadRepository) FindOrCreateThread(ctx context.Context, t domain.Thread) (domain.Thread, bool, error) {
	pair := domain.OrderedPair(t.Participants[0], t.Participants[1])

	const insert = `
INSERT INTO threads (id, participant_a, participant_b, listing_id, listing_key, last_message, last_message_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (participant_a, participant_b, listing_key) DO NOTHING
RETURNING ` + threadColumns

	created, err := scanThread(r.queryRow(ctx, insert,
		t.ID, pair[0], pair[1], nullID(t.ListingID), t.ListingID, t.LastMessage, t.LastMessageAt, t.CreatedAt,
	))
	switch {
	case err == nil:
		return created, true, nil
	case isInvalidUUID(err):
		return domain.Thread{}, false, domain.ErrInvalidID
	case isForeignKeyViolation(err):
		if constraintName(err) == "threads_listing_id_fkey" {
			return domain.Thread{}, false, domain.ErrListingNotFound
		}
		return domain.Thread{}, false, domain.ErrUserNotFound
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.Thread{}, false, wrap("create thread", err)
	}

	const query = `
SELECT ` + threadColumns + `
FROM threads
WHERE participant_a = $1 AND participant_b = $2 AND listing_key = $3`

	existing, err := scanThread(r.queryRow(ctx, query, pair[0], pair[1], t.ListingID))
	if err != nil {
		return domain.Thread{}, false, wrap("find thread", err)
	}
	return existing, false, nil
}

func (r *ThreadRepository) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	return r.getThread(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, id)
}

func (r *ThreadRepository) GetThreadForUpdate(ctx context.Context, id string) (domain.Thread, error) {
	return r.getThread(ctx, `SELECT `+threadColumns+` FROM threads WHERE id = $1 FOR UPDATE`, id)
}

func (r *ThreadRepository) getThread(ctx context.Context, query, id string) (domain.Thread, error) {
	t, err := scanThread(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Thread{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thread{}, domain.ErrThreadNotFound
		}
		return domain.Thread{}, wrap("get thread", err)
	}
	return t, nil
}

func (r *ThreadRepository) UpdateThreadPreview(ctx context.Context, id, preview string, at time.Time) error {
	tag, err := r.exec(ctx, `UPDATE threads SET last_message = $2, last_message_at = $3 WHERE id = $1`, id, preview, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("update thread preview", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrThreadNotFound
	}
	return nil
}

// ListThreadSummaries returns the user's threads, most recently active
// first, with the user's own unread count and the counterpart's profile.
func (r *ThreadRepository) ListThreadSummaries(ctx context.Context, userID string) ([]domain.ThreadSummary, error) {
	const query = `
SELECT t.id, t.participant_a, t.participant_b, t.listing_id, t.last_message, t.last_message_at, t.created_at,
	u.id, u.role, u.company, u.verified,
	COALESCE(l.title, ''),
	(SELECT COUNT(*)
	 FROM messages m
	 WHERE m.thread_id = t.id
	   AND m.sender_id <> $1
	   AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1))
FROM threads t
JOIN users u ON u.id = CASE WHEN t.participant_a = $1 THEN t.participant_b ELSE t.participant_a END
LEFT JOIN listings l ON l.id = t.listing_id
WHERE t.participant_a = $1 OR t.participant_b = $1
ORDER BY t.last_message_at DESC, t.id`

	rows, err := r.query(ctx, query, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list threads", err)
	}
	defer rows.Close()

	out := []domain.ThreadSummary{}
	for rows.Next() {
		var s domain.ThreadSummary
		s.Thread, err = scanThread(rows,
			&s.Counterpart.ID, &s.Counterpart.Role, &s.Counterpart.Company, &s.Counterpart.Verified,
			&s.ListingTitle, &s.Unread,
		)
		if err != nil {
			return nil, wrap("scan thread", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list threads", err)
	}
	return out, nil
}
