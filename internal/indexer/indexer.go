package indexer

import (
	"log/slog"

	"github.com/openwebindex/platform/internal/hashtable"
	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/transfer"
	"github.com/openwebindex/platform/internal/urlstore"
	"github.com/openwebindex/platform/pkg/config"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
)

// Indexer owns the index levels and the supporting stores for batch
// ingestion. One Indexer serves one data directory; all methods are safe for
// concurrent use.
type Indexer struct {
	cfg config.Config
	log *slog.Logger
	m   *metrics.Metrics

	domains  *index.Index[index.DomainRecord]
	urls     *index.Index[index.URLRecord]
	words    *index.Index[index.CountedRecord]
	links    *index.Index[index.DomainRecord]
	urlLinks *index.Index[index.URLRecord]

	urlTable    *hashtable.Store
	domainTable *hashtable.Store
	urlStore    *urlstore.Store
	meta        *urlMetadata
	fetcher     *transfer.Fetcher
}

// New wires an Indexer from configuration. The URL store may be nil when
// running without Redis (tests, offline batch jobs); metadata then stays
// in memory only.
func New(cfg config.Config, urlStore *urlstore.Store, m *metrics.Metrics) (*Indexer, error) {
	domains, err := index.NewIndex[index.DomainRecord](cfg.Index, index.LevelDomain.String(), m)
	if err != nil {
		return nil, err
	}
	urls, err := index.NewIndex[index.URLRecord](cfg.Index, index.LevelURL.String(), m)
	if err != nil {
		return nil, err
	}
	words, err := index.NewIndex[index.CountedRecord](cfg.Index, index.LevelWord.String(), m)
	if err != nil {
		return nil, err
	}
	links, err := index.NewIndex[index.DomainRecord](cfg.Index, index.LevelLink.String(), m)
	if err != nil {
		return nil, err
	}
	urlLinks, err := index.NewIndex[index.URLRecord](cfg.Index, index.LevelURLLink.String(), m)
	if err != nil {
		return nil, err
	}
	urlTable, err := hashtable.New(cfg.Index, "urls")
	if err != nil {
		return nil, err
	}
	domainTable, err := hashtable.New(cfg.Index, "domains")
	if err != nil {
		return nil, err
	}

	return &Indexer{
		cfg:         cfg,
		log:         logger.WithComponent("indexer"),
		m:           m,
		domains:     domains,
		urls:        urls,
		words:       words,
		links:       links,
		urlLinks:    urlLinks,
		urlTable:    urlTable,
		domainTable: domainTable,
		urlStore:    urlStore,
		meta:        newURLMetadata(),
		fetcher:     transfer.NewFetcher(),
	}, nil
}

// Domains exposes the domain level for query execution.
func (ix *Indexer) Domains() *index.Index[index.DomainRecord] { return ix.domains }

// URLs exposes the URL level for query execution.
func (ix *Indexer) URLs() *index.Index[index.URLRecord] { return ix.urls }

// Words exposes the word-frequency level for query execution.
func (ix *Indexer) Words() *index.Index[index.CountedRecord] { return ix.words }

// Links exposes the domain link level.
func (ix *Indexer) Links() *index.Index[index.DomainRecord] { return ix.links }

// URLLinks exposes the per-URL inbound link level.
func (ix *Indexer) URLLinks() *index.Index[index.URLRecord] { return ix.urlLinks }

// URLTable resolves URL hashes back to URL strings.
func (ix *Indexer) URLTable() *hashtable.Store { return ix.urlTable }

// DomainTable resolves domain hashes back to host names.
func (ix *Indexer) DomainTable() *hashtable.Store { return ix.domainTable }

// Close releases every level's reader handles.
func (ix *Indexer) Close() {
	ix.domains.Close()
	ix.urls.Close()
	ix.words.Close()
	ix.links.Close()
	ix.urlLinks.Close()
}
