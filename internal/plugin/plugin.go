// Package plugin defines the service adapter interface for Kartta.
package plugin

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Adapter enumerates one service kind in a single region.
// Keep it simple: Kind + List. That's it.
type Adapter interface {
	// Kind returns the service kind this adapter handles.
	Kind() resource.Kind

	// List lazily yields every resource of the kind in region.
	// Pages are fetched as the caller iterates. An error is yielded
	// at most once and ends the sequence.
	List(ctx context.Context, region string) iter.Seq2[resource.Record, error]
}

// Registry maps kinds to adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[resource.Kind]Adapter
}

// NewRegistry creates an empty registry, optionally pre-filled.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[resource.Kind]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous one for the same kind.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = a
}

// Get returns the adapter for a kind.
func (r *Registry) Get(kind resource.Kind) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[kind]
	return a, ok
}

// All returns all registered adapters ordered by kind.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	slices.SortFunc(adapters, func(a, b Adapter) int {
		if a.Kind() < b.Kind() {
			return -1
		}
		if a.Kind() > b.Kind() {
			return 1
		}
		return 0
	})
	return adapters
}

// Kinds returns all registered kinds, sorted.
func (r *Registry) Kinds() []resource.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]resource.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Clear removes all adapters. Used for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[resource.Kind]Adapter)
}

// Func adapts a plain function into an Adapter.
type Func struct {
	K  resource.Kind
	Fn func(ctx context.Context, region string) iter.Seq2[resource.Record, error]
}

// Kind implements Adapter.
func (f Func) Kind() resource.Kind { return f.K }

// List implements Adapter.
func (f Func) List(ctx context.Context, region string) iter.Seq2[resource.Record, error] {
	return f.Fn(ctx, region)
}

// Slice returns a sequence that yields records then err, if non-nil.
func Slice(records []resource.Record, err error) iter.Seq2[resource.Record, error] {
	return func(yield func(resource.Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
		if err != nil {
			yield(resource.Record{}, err)
		}
	}
}
