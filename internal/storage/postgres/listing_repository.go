package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuniwaste/exchange/internal/domain"
)

type ListingRepository struct {
	db
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{db{pool: pool}}
}

const listingColumns = `
id, seller_id, title, material, category, quantity_tons, price_per_ton, location, lon, lat,
certifications, available_from, expires_on, pickup_requirements, documents, thumbnail,
status, created_at, updated_at`

func scanListing(row rowScanner) (domain.Listing, error) {
	var (
		l             domain.Listing
		availableFrom *time.Time
		expiresOn     *time.Time
	)
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Material, &l.Category, &l.QuantityTons, &l.PricePerTon,
		&l.Location, &l.Coords[0], &l.Coords[1],
		&l.Certifications, &availableFrom, &expiresOn, &l.PickupRequirements, &l.Documents, &l.Thumbnail,
		&l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	if availableFrom != nil {
		l.AvailableFrom = availableFrom.UTC()
	}
	if expiresOn != nil {
		l.ExpiresOn = expiresOn.UTC()
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func (r *ListingRepository) CreateListing(ctx context.Context, l domain.Listing) error {
	const stmt = `
INSERT INTO listings (` + listingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.exec(ctx, stmt,
		l.ID, l.SellerID, l.Title, l.Material, l.Category, l.QuantityTons, l.PricePerTon,
		l.Location, l.Coords[0], l.Coords[1],
		l.Certifications, nullTime(l.AvailableFrom), nullTime(l.ExpiresOn), l.PickupRequirements, l.Documents, l.Thumbnail,
		l.Status, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return wrap("create listing", err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	return r.getListing(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
}

func (r *ListingRepository) GetListingForUpdate(ctx context.Context, id string) (domain.Listing, error) {
	return r.getListing(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
}

func (r *ListingRepository) getListing(ctx context.Context, query, id string) (domain.Listing, error) {
	l, err := scanListing(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, wrap("get listing", err)
	}
	return l, nil
}

func (r *ListingRepository) UpdateListing(ctx context.Context, l domain.Listing) error {
	const stmt = `
UPDATE listings
SET title = $2, material = $3, category = $4, quantity_tons = $5, price_per_ton = $6,
	location = $7, lon = $8, lat = $9, certifications = $10, available_from = $11,
	expires_on = $12, pickup_requirements = $13, documents = $14, thumbnail = $15, updated_at = $16
WHERE id = $1`

	tag, err := r.exec(ctx, stmt,
		l.ID, l.Title, l.Material, l.Category, l.QuantityTons, l.PricePerTon,
		l.Location, l.Coords[0], l.Coords[1], l.Certifications, nullTime(l.AvailableFrom),
		nullTime(l.ExpiresOn), l.PickupRequirements, l.Documents, l.Thumbnail, l.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("update listing", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) SetListingStatus(ctx context.Context, id string, status domain.ListingStatus, at time.Time) error {
	tag, err := r.exec(ctx, `UPDATE listings SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrap("set listing status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

// DeleteListing removes the listing; its bids go with it through the
// foreign key cascade.
func (r *ListingRepository) DeleteListing(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrListingLocked
		}
		return wrap("delete listing", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) ListListings(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.SellerID != "" {
		add("seller_id = ?", f.SellerID)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.Location != "" {
		add("location ILIKE '%' || ? || '%'", escapeLike(f.Location))
	}
	if f.MinQuantity != nil {
		add("quantity_tons >= ?", *f.MinQuantity)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list listings", err)
	}
	defer rows.Close()

	out := []domain.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, wrap("scan listing", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrap("list listings", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
