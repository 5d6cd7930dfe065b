package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// LinkStore keeps the link table in a slice.
type LinkStore struct {
	mu   sync.Mutex
	rows []catalog.ProductLink
}

// NewLinkStore constructs an empty LinkStore.
func NewLinkStore() *LinkStore {
	return &LinkStore{}
}

// Reset drops every row.
func (s *LinkStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.rows = nil
	s.mu.Unlock()
	return nil
}

// Append adds links as one batch.
func (s *LinkStore) Append(_ context.Context, links ...catalog.ProductLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		if l != "" {
			s.rows = append(s.rows, l)
		}
	}
	return nil
}

// LoadDeduplicated returns links in first-seen order without duplicates.
func (s *LinkStore) LoadDeduplicated(_ context.Context) ([]catalog.ProductLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[catalog.ProductLink]struct{}, len(s.rows))
	out := make([]catalog.ProductLink, 0, len(s.rows))
	for _, l := range s.rows {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// Rows returns every appended row, duplicates included.
func (s *LinkStore) Rows() []catalog.ProductLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.ProductLink(nil), s.rows...)
}
