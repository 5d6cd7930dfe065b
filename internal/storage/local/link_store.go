package local

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

const linkHeader = "Link"

// LinkStoreConfig controls the CSV link table.
type LinkStoreConfig struct {
	Path string `mapstructure:"path"`
	// FilterSize bounds the recently-appended filter; 0 disables it.
	FilterSize int `mapstructure:"filter_size"`
}

// LinkStore keeps discovered links in a single-column CSV file.
// Append drops links seen in the recent-write filter; LoadDeduplicated
// remains the authoritative dedup.
type LinkStore struct {
	mu     sync.Mutex
	table  *csvTable
	recent *lru.Cache[catalog.ProductLink, struct{}]
}

// NewLinkStore opens (without truncating) the CSV link table.
func NewLinkStore(cfg LinkStoreConfig) (*LinkStore, error) {
	table, err := newCSVTable(cfg.Path, []string{linkHeader})
	if err != nil {
		return nil, err
	}
	s := &LinkStore{table: table}
	if cfg.FilterSize > 0 {
		cache, err := lru.New[catalog.ProductLink, struct{}](cfg.FilterSize)
		if err != nil {
			return nil, fmt.Errorf("create link filter: %w", err)
		}
		s.recent = cache
	}
	return s, nil
}

// Reset empties the table.
func (s *LinkStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recent != nil {
		s.recent.Purge()
	}
	return s.table.truncate()
}

// Append writes links as one batch. Links enter the recent-write filter only
// once the batch is on disk, so a failed write never hides a later retry.
func (s *LinkStore) Append(_ context.Context, links ...catalog.ProductLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([][]string, 0, len(links))
	batch := make([]catalog.ProductLink, 0, len(links))
	inBatch := make(map[catalog.ProductLink]struct{}, len(links))
	for _, link := range links {
		if link == "" {
			continue
		}
		if s.recent != nil {
			if _, dup := inBatch[link]; dup || s.recent.Contains(link) {
				continue
			}
			inBatch[link] = struct{}{}
		}
		batch = append(batch, link)
		rows = append(rows, []string{string(link)})
	}
	if err := s.table.appendRows(rows); err != nil {
		return err
	}
	if s.recent != nil {
		for _, link := range batch {
			s.recent.Add(link, struct{}{})
		}
	}
	return nil
}

// LoadDeduplicated returns links in first-seen order without duplicates.
func (s *LinkStore) LoadDeduplicated(_ context.Context) ([]catalog.ProductLink, error) {
	s.mu.Lock()
	rows, err := s.table.readRows()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	seen := make(map[catalog.ProductLink]struct{}, len(rows))
	links := make([]catalog.ProductLink, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		link := catalog.ProductLink(strings.TrimSpace(row[0]))
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}
	return links, nil
}

// Snapshot exposes the raw CSV for archiving.
func (s *LinkStore) Snapshot(_ context.Context) (string, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, err := s.table.open()
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(s.table.path), body, nil
}
