// Package ingest defines the source adapter contract and the ordered registry
// the pipeline iterates over.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahmethakanbesel/market-ingest/internal/market"
)

// Source fetches a raw payload from one upstream and maps it to records.
// Implementations never touch storage.
type Source interface {
	Name() string
	FetchRaw(ctx context.Context) (json.RawMessage, error)
	Normalize(raw json.RawMessage) []market.Record
}

// Registry keeps sources in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds s. Registering a name twice replaces the source and keeps its
// original position.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.sources[s.Name()] = s
}

func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("source not found: %s", name)
	}
	return s, nil
}

// Sources returns the registered sources in registration order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sources[name])
	}
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
