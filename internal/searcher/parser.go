// Package searcher executes queries against the index levels: term
// parsing, per-term posting lookup, intersection, centrality-aware scoring,
// and a Redis result cache with request collapsing.
package searcher

import (
	"strings"

	"github.com/openwebindex/platform/internal/index"
	"github.com/openwebindex/platform/internal/indexer/tokenizer"
)

// queryTerm is one normalized term of a parsed query.
type queryTerm struct {
	term   string
	hash   uint64
	common bool
}

// parseQuery tokenizes a raw query with the same rules the indexer applies
// to documents and marks terms present in the common-word set. Duplicate
// terms collapse to one lookup.
func parseQuery(raw string, commonWords map[uint64]struct{}) []queryTerm {
	seen := make(map[uint64]struct{})
	var terms []queryTerm
	for _, token := range tokenizer.Tokenize(strings.TrimSpace(raw)) {
		hash := index.HashString(token.Term)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		_, common := commonWords[hash]
		terms = append(terms, queryTerm{term: token.Term, hash: hash, common: common})
	}

	// When a query mixes common and rare terms, the common ones add noise
	// and huge posting lists; drop them. An all-common query keeps them,
	// otherwise it could match nothing.
	var rare int
	for _, t := range terms {
		if !t.common {
			rare++
		}
	}
	if rare == 0 || rare == len(terms) {
		return terms
	}
	filtered := terms[:0]
	for _, t := range terms {
		if !t.common {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
