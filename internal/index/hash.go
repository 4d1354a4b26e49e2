// Package index implements the sharded on-disk inverted index: fixed-size
// posting records, the paged shard file codec, the key directory, the
// append/spill/merge builder, the shard reader, and the sharded façade that
// routes keys across shards.
package index

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashString returns the 64-bit term key for a normalized token or URL.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// HashToken lower-cases the token before hashing so that term keys are
// case-insensitive.
func HashToken(token string) uint64 {
	return HashString(strings.ToLower(token))
}

// ShardID returns the shard a key belongs to.
func ShardID(key uint64, numShards int) int {
	return int(key % uint64(numShards))
}
