// Package urlstore persists per-URL metadata in Redis: the URL's domain
// hash, its document size, and the common-word set shared between the
// indexer and the searcher.
package urlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "github.com/openwebindex/platform/pkg/errors"
	"github.com/openwebindex/platform/pkg/redis"
)

const commonWordsKey = "index:common_words"

// Store wraps the shared Redis client with URL-metadata accessors. Entries
// are written without TTL; this package has no delete operation, and
// Indexer.Truncate does not remove them.
type Store struct {
	client *redis.Client
}

// New returns a Store over an established Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

func urlDomainKey(urlHash uint64) string { return fmt.Sprintf("url:%d:domain", urlHash) }

func docSizeKey(urlHash uint64) string { return fmt.Sprintf("url:%d:size", urlHash) }

// PutURL records the domain hash and document size for one URL.
func (s *Store) PutURL(ctx context.Context, urlHash, domainHash, docSize uint64) error {
	if err := s.client.Set(ctx, urlDomainKey(urlHash), strconv.FormatUint(domainHash, 10), 0); err != nil {
		return fmt.Errorf("storing url domain: %w", err)
	}
	if err := s.client.Set(ctx, docSizeKey(urlHash), strconv.FormatUint(docSize, 10), 0); err != nil {
		return fmt.Errorf("storing url size: %w", err)
	}
	return nil
}

// DomainOf returns the domain hash for a URL hash.
func (s *Store) DomainOf(ctx context.Context, urlHash uint64) (uint64, error) {
	value, err := s.client.Get(ctx, urlDomainKey(urlHash))
	if err != nil {
		if redis.IsNilError(err) {
			return 0, apperrors.Newf(apperrors.ErrKeyNotFound, "url %d has no domain mapping", urlHash)
		}
		return 0, fmt.Errorf("loading url domain: %w", err)
	}
	return strconv.ParseUint(value, 10, 64)
}

// DocSize returns the token count recorded for a URL. URLs never indexed
// report size zero without error so score normalization can skip them.
func (s *Store) DocSize(ctx context.Context, urlHash uint64) (uint64, error) {
	value, err := s.client.Get(ctx, docSizeKey(urlHash))
	if err != nil {
		if redis.IsNilError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("loading url size: %w", err)
	}
	return strconv.ParseUint(value, 10, 64)
}

// PutCommonWords replaces the persisted common-word key set.
func (s *Store) PutCommonWords(ctx context.Context, keys []uint64) error {
	payload, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding common words: %w", err)
	}
	if err := s.client.Set(ctx, commonWordsKey, payload, 0); err != nil {
		return fmt.Errorf("storing common words: %w", err)
	}
	return nil
}

// CommonWords returns the persisted common-word key set. An absent set is
// empty, not an error.
func (s *Store) CommonWords(ctx context.Context) (map[uint64]struct{}, error) {
	value, err := s.client.Get(ctx, commonWordsKey)
	if err != nil {
		if redis.IsNilError(err) {
			return map[uint64]struct{}{}, nil
		}
		return nil, fmt.Errorf("loading common words: %w", err)
	}
	var keys []uint64
	if err := json.Unmarshal([]byte(value), &keys); err != nil {
		return nil, fmt.Errorf("decoding common words: %w", err)
	}
	set := make(map[uint64]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set, nil
}
