package oracle

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource holds quotes set directly by the caller. Used by tests
// and local runs to pin prices.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]Quote)}
}

// Set installs the quote returned for ref.
func (s *StaticSource) Set(ref string, q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[ref] = q
}

// Drop removes the quote for ref so lookups fail with ErrUnavailable.
func (s *StaticSource) Drop(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, ref)
}

func (s *StaticSource) Latest(_ context.Context, ref string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ref]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no quote for %s", ErrUnavailable, ref)
	}
	return q, nil
}
