package indexer

import (
	"context"
	"sync"

	"github.com/openwebindex/platform/internal/urlstore"
)

// urlMetadata accumulates the per-URL facts workers discover while indexing
// (owning domain, token count) and flushes them to the URL store in one pass
// after ingestion. Writes from concurrent workers are serialized by a single
// mutex; the maps are the hot path, the store flush is not.
type urlMetadata struct {
	mu       sync.Mutex
	domains  map[uint64]uint64
	docSizes map[uint64]uint64
}

func newURLMetadata() *urlMetadata {
	return &urlMetadata{
		domains:  make(map[uint64]uint64),
		docSizes: make(map[uint64]uint64),
	}
}

// put records one URL's domain and document size. Repeated URLs accumulate
// their sizes, matching how repeated TSV rows accumulate posting scores.
func (m *urlMetadata) put(urlHash, domainHash, docSize uint64) {
	m.mu.Lock()
	m.domains[urlHash] = domainHash
	m.docSizes[urlHash] += docSize
	m.mu.Unlock()
}

// docSize returns the accumulated token count for a URL.
func (m *urlMetadata) docSize(urlHash uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docSizes[urlHash]
}

// flush persists the accumulated metadata to the URL store and keeps the
// in-memory maps for the optimize pass.
func (m *urlMetadata) flush(ctx context.Context, store *urlstore.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for urlHash, domainHash := range m.domains {
		if err := store.PutURL(ctx, urlHash, domainHash, m.docSizes[urlHash]); err != nil {
			return err
		}
	}
	return nil
}
