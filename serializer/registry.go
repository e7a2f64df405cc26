package serializer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Factory creates the descriptor for a related record.
type Factory func(ctx context.Context) (*Descriptor, error)

// Dynamic picks a factory from the runtime shape of one related item.
// Returning nil falls back to the edge's static Target.
type Dynamic func(item any) Factory

// Static wraps an already built descriptor.
func Static(d *Descriptor) Factory {
	return func(context.Context) (*Descriptor, error) {
		return d, nil
	}
}

// Registry maps domain-type tags to descriptor factories. Without a cache TTL
// every lookup builds a fresh descriptor.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     *cache.Cache
}

type RegistryOption func(*Registry)

// WithDescriptorCache keeps built descriptors for ttl.
func WithDescriptorCache(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.cache = cache.New(ttl, 2*ttl)
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(tag string, factory Factory) error {
	if tag == "" {
		return ConfigurationError{Reason: "empty type tag"}
	}
	if factory == nil {
		return ConfigurationError{Type: tag, Reason: "nil factory"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[tag]; exists {
		return ConfigurationError{Type: tag, Reason: "already registered"}
	}
	r.factories[tag] = factory
	return nil
}

func (r *Registry) MustRegister(tag string, factory Factory) {
	if err := r.Register(tag, factory); err != nil {
		panic(err)
	}
}

// Descriptor builds (or returns the cached) descriptor for tag.
func (r *Registry) Descriptor(ctx context.Context, tag string) (*Descriptor, error) {
	if r.cache != nil {
		if cached, found := r.cache.Get(tag); found {
			return cached.(*Descriptor), nil
		}
	}

	r.mu.RLock()
	factory, ok := r.factories[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, ConfigurationError{Type: tag, Reason: "no descriptor registered"}
	}

	d, err := factory(ctx)
	if err != nil {
		return nil, ConfigurationError{Type: tag, Reason: "descriptor factory failed", Err: err}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(tag, d, cache.DefaultExpiration)
	}
	return d, nil
}

// Factory returns a lazily resolved reference to tag, so descriptors can
// point at each other regardless of registration order.
func (r *Registry) Factory(tag string) Factory {
	return func(ctx context.Context) (*Descriptor, error) {
		return r.Descriptor(ctx, tag)
	}
}

func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[tag]
	return ok
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
