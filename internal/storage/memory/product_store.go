package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// ProductStore keeps extracted records in a slice.
type ProductStore struct {
	mu      sync.Mutex
	records []catalog.ProductRecord
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{}
}

// Reset drops every record.
func (s *ProductStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}

// Append stores one record.
func (s *ProductStore) Append(_ context.Context, record catalog.ProductRecord) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of the stored records.
func (s *ProductStore) Records() []catalog.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.ProductRecord(nil), s.records...)
}
