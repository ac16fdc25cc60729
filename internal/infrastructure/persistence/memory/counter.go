package memory

import (
	"context"
	"sync"

	"github.com/erp/docflow/internal/domain/numbering"
	"github.com/erp/docflow/internal/domain/shared"
)

// CounterStore implements numbering.CounterStore in process memory. Counters
// do not survive a restart.
type CounterStore struct {
	mu     sync.Mutex
	series map[string]*numbering.Series
}

// NewCounterStore creates an empty CounterStore
func NewCounterStore() *CounterStore {
	return &CounterStore{series: make(map[string]*numbering.Series)}
}

var _ numbering.CounterStore = (*CounterStore)(nil)

// Increment atomically advances the counter for key
func (s *CounterStore) Increment(_ context.Context, key numbering.Key, prefix string, width int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[key.String()]
	if !ok {
		series = &numbering.Series{Key: key, Prefix: prefix, Width: width}
		s.series[key.String()] = series
	}
	series.Counter++
	return series.Counter, nil
}

// Get returns a copy of the series
func (s *CounterStore) Get(_ context.Context, key numbering.Key) (numbering.Series, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[key.String()]
	if !ok {
		return numbering.Series{}, false, nil
	}
	return *series, true, nil
}

// Reset overwrites the counter of an existing series
func (s *CounterStore) Reset(_ context.Context, key numbering.Key, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[key.String()]
	if !ok {
		return shared.ErrNotFound
	}
	series.Counter = value
	return nil
}
