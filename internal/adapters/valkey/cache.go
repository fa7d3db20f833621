package valkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

const (
	keyPrefix = "safewalk:"

	// localTTL bounds how long a replica serves a value from its client-side
	// cache. The server also pushes invalidations when the key changes.
	localTTL = 30 * time.Second
)

// Cache implements ports.CacheService on Valkey. Keys are namespaced under
// "safewalk:" and reads go through valkey-go's server-assisted client-side
// cache, so the hot snapshot key is usually answered without a round trip.
type Cache struct {
	client valkey.Client
}

// New connects to a Valkey server.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client}, nil
}

func key(k string) string { return keyPrefix + k }

// Get retrieves a value. A missing key yields ErrMiss.
func (c *Cache) Get(ctx context.Context, k string) ([]byte, error) {
	b, err := c.client.DoCache(ctx, c.client.B().Get().Key(key(k)).Cache(), localTTL).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get %s: %w", k, err)
	}
	return b, nil
}

// Set stores a value with a TTL in seconds. A non-positive TTL stores the
// value without expiry.
func (c *Cache) Set(ctx context.Context, k string, value []byte, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return c.client.Do(ctx, c.client.B().Set().Key(key(k)).Value(valkey.BinaryString(value)).Build()).Error()
	}
	return c.client.Do(ctx,
		c.client.B().Set().Key(key(k)).Value(valkey.BinaryString(value)).Ex(time.Duration(ttlSeconds)*time.Second).Build(),
	).Error()
}

// Delete removes a value. Replicas holding it in their client-side cache are
// notified by the server.
func (c *Cache) Delete(ctx context.Context, k string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key(k)).Build()).Error()
}

// Ping checks that the server answers.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
