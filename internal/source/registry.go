package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/partload/internal/catgen"
	"github.com/seantiz/partload/internal/loader"
)

// ErrUnknownSource is returned when no factory is registered under a name.
var ErrUnknownSource = errors.New("source not registered")

// Params are the request parameters handed to a Factory.
type Params struct {
	Count int           `json:"count"`
	Delay time.Duration `json:"delay"`
}

// Factory builds a fresh Source for one session.
type Factory func(p Params) loader.Source[any]

// Info describes a registered source.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxCount    int    `json:"max_count"`
}

type entry struct {
	info    Info
	factory Factory
}

// Registry holds named source factories.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]entry
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]entry),
	}
}

// NewDefaultRegistry creates a registry with the built-in "cats" and
// "numbers" sources.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Info{
		Name:        "cats",
		Description: "Numbered cats, one per delay",
		MaxCount:    100_000,
	}, func(p Params) loader.Source[any] {
		return Erase(catgen.Generate(p.Count, p.Delay))
	})
	r.Register(Info{
		Name:        "numbers",
		Description: "Ascending integers starting at 1",
		MaxCount:    1_000_000,
	}, func(p Params) loader.Source[any] {
		return Erase(Numbers(p.Count, p.Delay))
	})
	return r
}

// Register adds a factory under info.Name, replacing any previous one.
func (r *Registry) Register(info Info, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[info.Name] = entry{info: info, factory: f}
}

// Resolve validates p against the named source and builds a Source.
func (r *Registry) Resolve(name string, p Params) (loader.Source[any], error) {
	r.mu.RLock()
	e, ok := r.sources[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, ErrUnknownSource)
	}
	if p.Count < 0 || (e.info.MaxCount > 0 && p.Count > e.info.MaxCount) {
		return nil, fmt.Errorf("source %q: count must be between 0 and %d: %w",
			name, e.info.MaxCount, loader.ErrInvalidArgument)
	}
	if p.Delay < 0 {
		return nil, fmt.Errorf("source %q: delay must not be negative: %w", name, loader.ErrInvalidArgument)
	}
	return e.factory(p), nil
}

// List returns information about all registered sources, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sources))
	for _, e := range r.sources {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Numbers yields 1 through count, each after waiting delay.
func Numbers(count int, delay time.Duration) loader.Source[int] {
	return func(ctx context.Context) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			for i := 1; i <= count; i++ {
				if delay > 0 {
					t := time.NewTimer(delay)
					select {
					case <-t.C:
					case <-ctx.Done():
						t.Stop()
						yield(0, ctx.Err())
						return
					}
				}
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

// Erase converts a typed source into one yielding untyped items.
func Erase[T any](src loader.Source[T]) loader.Source[any] {
	return func(ctx context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for item, err := range src(ctx) {
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
