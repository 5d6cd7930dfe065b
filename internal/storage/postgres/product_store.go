package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// ProductStore writes one row per extracted record.
type ProductStore struct {
	db    DB
	table string
}

// NewProductStore wraps an existing pool.
func NewProductStore(db DB, table string) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "products")
	if err != nil {
		return nil, err
	}
	return &ProductStore{db: db, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *ProductStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	title TEXT,
	description TEXT,
	price TEXT,
	unit_price TEXT,
	promo_offer TEXT,
	rating DOUBLE PRECISION,
	review_count INTEGER,
	breadcrumbs TEXT[],
	tags TEXT[],
	nutrition JSONB NOT NULL DEFAULT '{}',
	image_url TEXT,
	product_url TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Reset empties the table.
func (s *ProductStore) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY", s.table)); err != nil {
		return fmt.Errorf("truncate products: %w", err)
	}
	return nil
}

// Append inserts one record.
func (s *ProductStore) Append(ctx context.Context, r catalog.ProductRecord) error {
	if r.Link == "" {
		return fmt.Errorf("product link is required")
	}
	nutrition := r.Nutrition
	if nutrition == nil {
		nutrition = catalog.NutritionTable{}
	}
	nutritionJSON, err := json.Marshal(nutrition)
	if err != nil {
		return fmt.Errorf("marshal nutrition: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	title,
	description,
	price,
	unit_price,
	promo_offer,
	rating,
	review_count,
	breadcrumbs,
	tags,
	nutrition,
	image_url,
	product_url,
	last_updated
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		r.Title,
		r.Description,
		r.Price,
		r.UnitPrice,
		r.PromoOffer,
		r.Rating,
		r.ReviewCount,
		nonNil(r.Breadcrumbs),
		nonNil(r.Tags),
		nutritionJSON,
		r.ImageURL,
		string(r.Link),
		r.ExtractedAt,
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
