// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"strategylab/internal/domain"
)

// Strategy turns one daily snapshot, and optionally the day's AI insights,
// into a trading signal.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Analyze returns the signal for snap. ai is nil when the run does not
	// use AI or no insights were available for the day. Implementations
	// must be stateless across calls so that concurrent runs can share them.
	Analyze(ctx context.Context, snap domain.DailySnapshot, ai *domain.InsightBundle) (domain.Signal, error)
}

// ErrUnknownStrategy is returned by Resolve for unregistered names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Resolve looks up each name in order. An empty list resolves to every
// registered strategy in name order.
func (r *Registry) Resolve(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		names = r.List()
	}
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		s, ok := r.Get(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, n)
		}
		out = append(out, s)
	}
	return out, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
