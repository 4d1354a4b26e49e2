package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
	"github.com/openwebindex/platform/pkg/redis"
)

// CachedSearcher fronts an Executor with a Redis result cache. Concurrent
// identical queries collapse into one execution via singleflight, so a cache
// miss storm on a hot query hits the index once.
type CachedSearcher struct {
	executor *Executor
	client   *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	log      *slog.Logger
	m        *metrics.Metrics
}

// NewCachedSearcher wraps executor. client may be nil to disable caching.
func NewCachedSearcher(executor *Executor, client *redis.Client, ttl time.Duration, m *metrics.Metrics) *CachedSearcher {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSearcher{
		executor: executor,
		client:   client,
		ttl:      ttl,
		log:      logger.WithComponent("search-cache"),
		m:        m,
	}
}

func cacheKey(query string, limit int) string {
	return fmt.Sprintf("search:%d:%d", index.HashString(query), limit)
}

// Search serves from cache when possible and stores fresh results on miss.
func (s *CachedSearcher) Search(ctx context.Context, query string, limit int) (*SearchResult, bool, error) {
	if s.client == nil {
		result, err := s.executor.Search(ctx, query, limit)
		return result, false, err
	}

	key := cacheKey(query, limit)
	if cached, err := s.client.Get(ctx, key); err == nil {
		var result SearchResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			if s.m != nil {
				s.m.CacheHitsTotal.Inc()
			}
			return &result, true, nil
		}
		s.log.Warn("cache entry undecodable, evicting", "key", key)
		s.client.Del(ctx, key)
	} else if !redis.IsNilError(err) {
		s.log.Warn("cache read failed", "error", err)
	}
	if s.m != nil {
		s.m.CacheMissesTotal.Inc()
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		result, err := s.executor.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(result); err == nil {
			if err := s.client.Set(ctx, key, payload, s.ttl); err != nil {
				s.log.Warn("cache write failed", "error", err)
			}
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value.(*SearchResult), false, nil
}

// Invalidate drops every cached search result, called after reindexing.
func (s *CachedSearcher) Invalidate(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	deleted, err := s.client.FlushByPattern(ctx, "search:*")
	if err != nil {
		return err
	}
	s.log.Info("search cache invalidated", "entries", deleted)
	return nil
}
