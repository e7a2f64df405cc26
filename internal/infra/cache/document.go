package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	pkgerrors "github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("cache")

const generationKey = "graphdoc:generation"

// Client is the subset of memcache.Client the document cache needs.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Add(item *memcache.Item) error
	Increment(key string, delta uint64) (uint64, error)
}

// DocumentCache stores rendered documents in memcached. Every key embeds a
// generation number, so a single Invalidate drops all cached documents.
type DocumentCache struct {
	mc  Client
	ttl time.Duration
}

func NewMemcached(server string) *memcache.Client {
	return memcache.New(server)
}

func NewDocumentCache(mc Client, ttl time.Duration) *DocumentCache {
	return &DocumentCache{mc: mc, ttl: ttl}
}

func (c *DocumentCache) generation() (uint64, error) {
	item, err := c.mc.Get(generationKey)
	if err == nil {
		return strconv.ParseUint(string(item.Value), 10, 64)
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		return 0, err
	}
	err = c.mc.Add(&memcache.Item{Key: generationKey, Value: []byte("1")})
	if err != nil && !errors.Is(err, memcache.ErrNotStored) {
		return 0, err
	}
	return 1, nil
}

func (c *DocumentCache) key(parts []string) (string, error) {
	gen, err := c.generation()
	if err != nil {
		return "", err
	}
	h := xxh3.New()
	for _, p := range parts {
		h.WriteString(p)
		h.Write([]byte{0})
	}
	return "graphdoc:doc:" + strconv.FormatUint(gen, 10) + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}

// Get returns the document cached under parts, along with the key it was
// looked up under. Set must be given that key, so a document rendered before
// an Invalidate is written into the generation that was dropped.
func (c *DocumentCache) Get(ctx context.Context, parts ...string) ([]byte, string, bool, error) {
	_, span := tracer.Start(ctx, "Cache.Document.Get")
	defer span.End()

	key, err := c.key(parts)
	if err != nil {
		span.RecordError(err)
		return nil, "", false, pkgerrors.Wrap(err, "DocumentCache.Get")
	}
	item, err := c.mc.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, key, false, nil
		}
		span.RecordError(err)
		return nil, key, false, pkgerrors.Wrap(err, "DocumentCache.Get")
	}
	return item.Value, key, true, nil
}

func (c *DocumentCache) Set(ctx context.Context, key string, value []byte) error {
	_, span := tracer.Start(ctx, "Cache.Document.Set")
	defer span.End()

	if key == "" {
		return pkgerrors.New("DocumentCache.Set: empty key")
	}
	err := c.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(c.ttl.Seconds())})
	if err != nil {
		span.RecordError(err)
		return pkgerrors.Wrap(err, "DocumentCache.Set")
	}
	return nil
}

// Invalidate moves to a new generation. Older entries expire on their own.
func (c *DocumentCache) Invalidate(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Cache.Document.Invalidate")
	defer span.End()

	_, err := c.mc.Increment(generationKey, 1)
	if err == nil {
		return nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		span.RecordError(err)
		return pkgerrors.Wrap(err, "DocumentCache.Invalidate")
	}
	err = c.mc.Add(&memcache.Item{Key: generationKey, Value: []byte("2")})
	if err != nil && !errors.Is(err, memcache.ErrNotStored) {
		span.RecordError(err)
		return pkgerrors.Wrap(err, "DocumentCache.Invalidate")
	}
	return nil
}
