// Package cache stores fetched metadata snapshots so repeated commands do
// not have to export the data dictionary from the API again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Cache is a byte store with per-entry expiry
type Cache interface {
	// Get retrieves a value, returning *MissError when absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value; a zero ttl uses the configured default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// Clear removes every value under the cache's prefix
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config holds settings shared by every backend
type Config struct {
	Backend string
	// DefaultTTL applies when Set is called with a zero ttl. Negative
	// means entries never expire.
	DefaultTTL time.Duration
	// Prefix namespaces every key
	Prefix string
	// RedisAddr, RedisPassword and RedisDB select the redis server
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns a memory cache keeping snapshots for ten minutes
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		DefaultTTL: 10 * time.Minute,
		Prefix:     "redcapp:",
		RedisAddr:  "localhost:6379",
	}
}

// New builds the backend named by cfg.Backend. BackendNone returns a nil
// Cache, which callers treat as caching disabled.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryCache(cfg), nil
	case BackendRedis:
		return NewRedisCache(ctx, cfg)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (expected memory, redis or none)", cfg.Backend)
	}
}

// MissError is returned when a key is not cached
type MissError struct {
	Key string
}

func (e *MissError) Error() string {
	return "cache miss: " + e.Key
}

// IsMiss checks whether err is, or wraps, a cache miss
func IsMiss(err error) bool {
	var me *MissError
	return errors.As(err, &me)
}

// SnapshotKey derives the key a project's metadata snapshot is cached
// under. The token is hashed so it never appears in the store.
func SnapshotKey(apiURL, token string) string {
	sum := sha256.Sum256([]byte(apiURL + "\x00" + token))
	return "snapshot:" + hex.EncodeToString(sum[:8])
}
