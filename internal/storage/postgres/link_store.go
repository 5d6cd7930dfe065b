package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// LinkStore keeps discovered links in a table with an insertion sequence.
//
//	CREATE TABLE product_links (seq BIGSERIAL PRIMARY KEY, link TEXT NOT NULL,
//	    appended_at TIMESTAMPTZ NOT NULL DEFAULT now());
type LinkStore struct {
	db    DB
	table string
}

// NewLinkStore wraps an existing pool.
func NewLinkStore(db DB, table string) (*LinkStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "product_links")
	if err != nil {
		return nil, err
	}
	return &LinkStore{db: db, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *LinkStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq BIGSERIAL PRIMARY KEY,
	link TEXT NOT NULL,
	appended_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Reset empties the table.
func (s *LinkStore) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY", s.table)); err != nil {
		return fmt.Errorf("truncate links: %w", err)
	}
	return nil
}

// Append inserts links as one statement.
func (s *LinkStore) Append(ctx context.Context, links ...catalog.ProductLink) error {
	values := make([]string, 0, len(links))
	for _, l := range links {
		if l != "" {
			values = append(values, string(l))
		}
	}
	if len(values) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (link) SELECT unnest($1::text[])`, s.table)
	if _, err := s.db.Exec(ctx, query, values); err != nil {
		return fmt.Errorf("insert links: %w", err)
	}
	return nil
}

// LoadDeduplicated returns links ordered by their first insertion.
func (s *LinkStore) LoadDeduplicated(ctx context.Context) ([]catalog.ProductLink, error) {
	query := fmt.Sprintf(`SELECT link FROM %s GROUP BY link ORDER BY MIN(seq)`, s.table)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		if isUndefinedTable(err) {
			return []catalog.ProductLink{}, nil
		}
		return nil, fmt.Errorf("select links: %w", err)
	}
	defer rows.Close()

	links := []catalog.ProductLink{}
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, catalog.ProductLink(link))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
