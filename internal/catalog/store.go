// Package catalog implements the bounded, deduplicated store of known
// products. The store owns ingestion-order eviction and is the single source
// for catalog statistics and the version counter used for conditional HTTP
// responses.
//
// The store never exposes its internal containers: All returns a copy, and
// every mutation path runs under one mutex so callers observe each batch as a
// single atomic update.
package catalog

import (
	"sync"
	"time"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// DefaultCapacity is the maximum number of products retained.
const DefaultCapacity = 1000

// Store is the capacity-bounded product catalog. A product is "new" iff its
// ID is absent at ingestion time; new products are stamped with the current
// UTC time and appended, and the oldest entries are evicted once the store
// exceeds its capacity.
//
// This type is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    []string // product IDs in ingestion order, oldest first
	byID     map[string]domain.Product
	version  int64 // bumped on every mutation; monotonic while the process lives

	now func() time.Time // test seam
}

// NewStore constructs an empty Store. Capacities <= 0 are coerced to
// DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		byID:     make(map[string]domain.Product),
		now:      time.Now,
	}
}

// Seed loads previously persisted products, preserving their original
// ingestion timestamps and relative order. Entries beyond capacity are
// dropped oldest-first, and duplicate IDs keep the first occurrence.
func (s *Store) Seed(products []domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range products {
		if _, ok := s.byID[p.ID]; ok {
			continue
		}
		s.byID[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	s.evictLocked()
	s.version++
}

// Ingest deduplicates raw against the current catalog and appends the new
// products, stamping each with the current UTC time. It returns only the
// products that were actually added, in input order. Exceeding the capacity
// evicts the oldest entries; eviction is silent, expected behavior.
func (s *Store) Ingest(raw []domain.Product) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	var added []domain.Product
	for _, p := range raw {
		if p.ID == "" {
			continue
		}
		if _, ok := s.byID[p.ID]; ok {
			continue
		}
		p.Timestamp = ts
		s.byID[p.ID] = p
		s.order = append(s.order, p.ID)
		added = append(added, p)
	}
	if len(added) > 0 {
		s.evictLocked()
		s.version++
	}
	return added
}

// SetCategory stamps the classified alert category onto a retained product,
// replacing the source-shelf label it was crawled with. Per-category
// statistics count this classified value. Absent IDs are a no-op.
func (s *Store) SetCategory(productID string, category domain.AlertCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[productID]
	if !ok || p.Category == category {
		return
	}
	p.Category = category
	s.byID[productID] = p
	s.version++
}

// Remove deletes one product by ID. Removing an absent ID is a no-op.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[productID]; !ok {
		return
	}
	delete(s.byID, productID)
	for i, id := range s.order {
		if id == productID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
}

// All returns a copy of the catalog in ingestion order, oldest first.
func (s *Store) All() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Len returns the number of retained products.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Version returns the mutation counter. It changes whenever the catalog
// content changes, which makes it suitable as a weak ETag component.
func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Stats derives catalog statistics as of now: the retained total, products
// ingested within the last hour, and per-category counts.
func (s *Store) Stats(now time.Time) domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.Stats{Total: len(s.order)}
	hourAgo := now.Add(-time.Hour)
	for _, id := range s.order {
		p := s.byID[id]
		if p.Timestamp.After(hourAgo) {
			st.New++
		}
		switch p.Category {
		case domain.CategorySuper:
			st.Super++
		case domain.CategoryElectronics:
			st.Electronics++
		case domain.CategoryBest:
			st.Best++
		case domain.CategoryKeyword:
			st.Keyword++
		}
	}
	return st
}

// evictLocked drops the oldest entries until the store is within capacity.
// Callers must hold s.mu.
func (s *Store) evictLocked() {
	over := len(s.order) - s.capacity
	if over <= 0 {
		return
	}
	for _, id := range s.order[:over] {
		delete(s.byID, id)
	}
	s.order = append([]string(nil), s.order[over:]...)
}
