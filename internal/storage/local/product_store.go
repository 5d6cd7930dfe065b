package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// TimestampLayout is the last_updated column format (day first).
const TimestampLayout = "02/01/2006 15:04:05"

// ProductColumns is the header of the products table.
var ProductColumns = []string{
	"title",
	"description",
	"price",
	"unit_price",
	"promo_offer",
	"rating",
	"review_count",
	"breadcrumbs",
	"tags",
	"nutrition",
	"image_url",
	"product_url",
	"last_updated",
}

// ProductStoreConfig controls the CSV products table.
type ProductStoreConfig struct {
	Path string `mapstructure:"path"`
}

// ProductStore appends one CSV row per extracted record.
type ProductStore struct {
	mu    sync.Mutex
	table *csvTable
}

// NewProductStore opens (without truncating) the CSV products table.
func NewProductStore(cfg ProductStoreConfig) (*ProductStore, error) {
	table, err := newCSVTable(cfg.Path, ProductColumns)
	if err != nil {
		return nil, err
	}
	return &ProductStore{table: table}, nil
}

// Reset empties the table.
func (s *ProductStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.truncate()
}

// Append writes one record as a single row.
func (s *ProductStore) Append(_ context.Context, record catalog.ProductRecord) error {
	row, err := productRow(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.appendRows([][]string{row})
}

// Count returns the number of data rows.
func (s *ProductStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.table.readRows()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Snapshot exposes the raw CSV for archiving.
func (s *ProductStore) Snapshot(_ context.Context) (string, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.table.open()
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(s.table.path), body, nil
}

func productRow(r catalog.ProductRecord) ([]string, error) {
	nutrition := r.Nutrition
	if nutrition == nil {
		nutrition = catalog.NutritionTable{}
	}
	nutritionJSON, err := json.Marshal(nutrition)
	if err != nil {
		return nil, fmt.Errorf("marshal nutrition: %w", err)
	}
	rating := ""
	if r.Rating != nil {
		rating = strconv.FormatFloat(*r.Rating, 'f', -1, 64)
	}
	reviews := ""
	if r.ReviewCount != nil {
		reviews = strconv.Itoa(*r.ReviewCount)
	}
	return []string{
		r.Title,
		r.Description,
		r.Price,
		r.UnitPrice,
		r.PromoOffer,
		rating,
		reviews,
		strings.Join(r.Breadcrumbs, " > "),
		strings.Join(r.Tags, "|"),
		string(nutritionJSON),
		r.ImageURL,
		string(r.Link),
		r.ExtractedAt.Format(TimestampLayout),
	}, nil
}
