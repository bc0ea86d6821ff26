package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type BidRepository struct {
	db
}

func NewBidRepository(pool *pgxpool.Pool) *BidRepository {
	return &BidRepository{db{pool: pool}}
}

const bidColumns = `id, listing_id, bidder_id, amount, status, placed_at`

func scanBid(row rowScanner) (domain.Bid, error) {
	var b domain.Bid
	if err := row.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.Amount, &b.Status, &b.PlacedAt); err != nil {
		return domain.Bid{}, err
	}
	b.PlacedAt = b.PlacedAt.UTC()
	return b, nil
}

func (r *BidRepository) CreateBid(ctx context.Context, b domain.Bid) error {
	const stmt = `INSERT INTO bids (` + bidColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.exec(ctx, stmt, b.ID, b.ListingID, b.BidderID, b.Amount, b.Status, b.PlacedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			if constraintName(err) == "bids_bidder_id_fkey" {
				return domain.ErrUserNotFound
			}
			return domain.ErrListingNotFound
		}
		return wrap("create bid", err)
	}
	return nil
}

func (r *BidRepository) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	return r.getBid(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
}

func (r *BidRepository) GetBidForUpdate(ctx context.Context, id string) (domain.Bid, error) {
	return r.getBid(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1 FOR UPDATE`, id)
}

func (r *BidRepository) getBid(ctx context.Context, query, id string) (domain.Bid, error) {
	b, err := scanBid(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Bid{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bid{}, domain.ErrBidNotFound
		}
		return domain.Bid{}, wrap("get bid", err)
	}
	return b, nil
}

func (r *BidRepository) SetBidStatus(ctx context.Context, id string, status domain.BidStatus) error {
	tag, err := r.exec(ctx, `UPDATE bids SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolation(err) {
			return domain.ErrBidAlreadyAccepted
		}
		return wrap("set bid status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBidNotFound
	}
	return nil
}

// DeclinePendingBids declines every pending bid on the listing except one
// and returns the rows it changed.
func (r *BidRepository) DeclinePendingBids(ctx context.Context, listingID, exceptBidID string) ([]domain.Bid, error) {
	const stmt = `
UPDATE bids SET status = 'declined'
WHERE listing_id = $1 AND id <> $2 AND status = 'pending'
RETURNING ` + bidColumns

	return r.listBids(ctx, "decline pending bids", stmt, listingID, exceptBidID)
}

func (r *BidRepository) ListBidsByListing(ctx context.Context, listingID string) ([]domain.Bid, error) {
	const query = `SELECT ` + bidColumns + ` FROM bids WHERE listing_id = $1 ORDER BY placed_at DESC, id`
	return r.listBids(ctx, "list bids by listing", query, listingID)
}

func (r *BidRepository) ListBidsByBidder(ctx context.Context, bidderID string) ([]domain.Bid, error) {
	const query = `SELECT ` + bidColumns + ` FROM bids WHERE bidder_id = $1 ORDER BY placed_at DESC, id`
	return r.listBids(ctx, "list bids by bidder", query, bidderID)
}

func (r *BidRepository) ListBidsBySeller(ctx context.Context, sellerID string) ([]domain.Bid, error) {
	const query = `
SELECT b.id, b.listing_id, b.bidder_id, b.amount, b.status, b.placed_at
FROM bids b
JOIN listings l ON l.id = b.listing_id
WHERE l.seller_id = $1
ORDER BY b.placed_at DESC, b.id`
	return r.listBids(ctx, "list bids by seller", query, sellerID)
}

func (r *BidRepository) listBids(ctx context.Context, op, query string, args ...any) ([]domain.Bid, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap(op, err)
	}
	defer rows.Close()

	out := []domain.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap(op, err)
	}
	return out, nil
}
