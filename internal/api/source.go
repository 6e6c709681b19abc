package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redcapp/redcapp/internal/cache"
	"github.com/redcapp/redcapp/internal/metadata"
)

// Source supplies metadata snapshots
type Source interface {
	Snapshot(ctx context.Context) (*metadata.Snapshot, error)
}

// CachedSource serves snapshots from a cache, falling back to the wrapped
// source on a miss. Cache failures are logged and never fail a fetch.
type CachedSource struct {
	source Source
	cache  cache.Cache
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource wraps src. A nil cache disables caching.
func NewCachedSource(src Source, c cache.Cache, key string, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{source: src, cache: c, key: key, ttl: ttl, logger: logger}
}

// Snapshot returns the cached snapshot or fetches and caches a fresh one
func (s *CachedSource) Snapshot(ctx context.Context) (*metadata.Snapshot, error) {
	if s.cache == nil {
		return s.source.Snapshot(ctx)
	}

	data, err := s.cache.Get(ctx, s.key)
	switch {
	case err == nil:
		snap, derr := metadata.UnmarshalSnapshot(data)
		if derr == nil {
			s.logger.Debug("snapshot cache hit", zap.String("key", s.key))
			return snap, nil
		}
		s.logger.Warn("discarding unreadable cached snapshot", zap.String("key", s.key), zap.Error(derr))
	case cache.IsMiss(err):
		s.logger.Debug("snapshot cache miss", zap.String("key", s.key))
	default:
		s.logger.Warn("snapshot cache unavailable", zap.String("key", s.key), zap.Error(err))
	}

	return s.fetch(ctx)
}

// Refresh bypasses the cache and replaces the cached snapshot
func (s *CachedSource) Refresh(ctx context.Context) (*metadata.Snapshot, error) {
	if s.cache == nil {
		return s.source.Snapshot(ctx)
	}
	return s.fetch(ctx)
}

func (s *CachedSource) fetch(ctx context.Context) (*metadata.Snapshot, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	data, err := snap.Marshal()
	if err != nil {
		s.logger.Warn("snapshot not cached", zap.Error(err))
		return snap, nil
	}
	if err := s.cache.Set(ctx, s.key, data, s.ttl); err != nil {
		s.logger.Warn("snapshot not cached", zap.String("key", s.key), zap.Error(err))
	}
	return snap, nil
}
