package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type TransactionRepository struct {
	db
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db{pool: pool}}
}

const transactionSelect = `
SELECT t.id, t.listing_id, t.bid_id, t.seller_id, t.buyer_id, t.value, t.stage, t.documents,
	t.created_at, t.updated_at, COALESCE(l.title, '')
FROM transactions t
LEFT JOIN listings l ON l.id = t.listing_id`

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.ListingID, &t.BidID, &t.SellerID, &t.BuyerID, &t.Value, &t.Stage, &t.Documents,
		&t.CreatedAt, &t.UpdatedAt, &t.ListingTitle,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (r *TransactionRepository) CreateTransaction(ctx context.Context, t domain.Transaction) error {
	const stmt = `
INSERT INTO transactions (id, listing_id, bid_id, seller_id, buyer_id, value, stage, documents, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	documents := t.Documents
	if documents == nil {
		documents = []string{}
	}
	_, err := r.exec(ctx, stmt,
		t.ID, t.ListingID, t.BidID, t.SellerID, t.BuyerID, t.Value, t.Stage, documents, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrTransactionExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrBidNotFound
		}
		return wrap("create transaction", err)
	}
	return nil
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, transactionSelect+` WHERE t.id = $1`, id)
}

func (r *TransactionRepository) GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, transactionSelect+` WHERE t.id = $1 FOR UPDATE OF t`, id)
}

func (r *TransactionRepository) getTransaction(ctx context.Context, query, id string) (domain.Transaction, error) {
	t, err := scanTransaction(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Transaction{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, wrap("get transaction", err)
	}
	return t, nil
}

func (r *TransactionRepository) UpdateTransactionStage(ctx context.Context, id string, stage domain.Stage, at time.Time) error {
	tag, err := r.exec(ctx, `UPDATE transactions SET stage = $2, updated_at = $3 WHERE id = $1`, id, stage, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("update transaction stage", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// AddTransactionDocument appends document unless it is already present.
func (r *TransactionRepository) AddTransactionDocument(ctx context.Context, id, document string, at time.Time) error {
	const stmt = `
UPDATE transactions
SET documents = CASE WHEN $2 = ANY(documents) THEN documents ELSE array_append(documents, $2) END,
	updated_at = $3
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, document, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("add transaction document", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) ListTransactionsByParty(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := r.query(ctx, transactionSelect+`
WHERE t.seller_id = $1 OR t.buyer_id = $1
ORDER BY t.created_at DESC, t.id`, userID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list transactions", err)
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrap("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list transactions", err)
	}
	return out, nil
}
