// Package indexer implements batch ingestion: TSV parsing, per-worker shard
// builders, the background merger, and the batch runner that drives the
// truncate, index, merge, sort, and optimize passes.
package indexer

import (
	"net/url"
	"strings"

	"github.com/openwebindex/platform/internal/index"
	apperrors "github.com/openwebindex/platform/pkg/errors"
)

// parsedURL carries the identity hashes derived from one raw URL.
type parsedURL struct {
	raw        string
	host       string
	urlHash    uint64
	domainHash uint64
}

// parseURL normalizes a raw URL and derives its hashes. The host is
// lower-cased and a leading www. is stripped so mirror spellings of a domain
// collapse; fragments never reach the index.
func parseURL(raw string) (parsedURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return parsedURL{}, apperrors.Newf(apperrors.ErrInternal, "parsing url %q: %v", raw, err)
	}
	if u.Host == "" || u.Scheme == "" {
		return parsedURL{}, apperrors.Newf(apperrors.ErrInternal, "url %q has no scheme or host", raw)
	}
	u.Fragment = ""
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	normalized := u.String()
	return parsedURL{
		raw:        normalized,
		host:       host,
		urlHash:    index.HashString(normalized),
		domainHash: index.HashString(host),
	}, nil
}
