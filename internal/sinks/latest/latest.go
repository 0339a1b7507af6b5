// Package latest keeps the most recent measurement per metric and scope for
// the local REST API.
package latest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/wxtpoller/internal/publish"
)

// Store is a publish.Sink that remembers rather than forwards.
type Store struct {
	mu      sync.RWMutex
	byScope map[publish.Scope]map[string]publish.Measurement
	updated time.Time
}

func NewStore() *Store {
	return &Store{byScope: make(map[publish.Scope]map[string]publish.Measurement)}
}

func (s *Store) Publish(ctx context.Context, m publish.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics, ok := s.byScope[m.Scope]
	if !ok {
		metrics = make(map[string]publish.Measurement)
		s.byScope[m.Scope] = metrics
	}
	metrics[m.Name] = m
	if m.Timestamp.After(s.updated) {
		s.updated = m.Timestamp
	}
	return nil
}

// Scope returns the latest measurements for one scope sorted by name.
func (s *Store) Scope(scope publish.Scope) []publish.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]publish.Measurement, 0, len(s.byScope[scope]))
	for _, m := range s.byScope[scope] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scopes lists the scopes that have received measurements.
func (s *Store) Scopes() []publish.Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]publish.Scope, 0, len(s.byScope))
	for scope := range s.byScope {
		out = append(out, scope)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Updated returns the newest measurement timestamp seen.
func (s *Store) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}
