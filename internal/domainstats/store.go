// Package domainstats persists per-domain statistics, harmonic centrality
// foremost, in PostgreSQL and serves them back as a ranking input.
package domainstats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS domain_stats (
    domain_hash  BIGINT PRIMARY KEY,
    host         TEXT NOT NULL DEFAULT '',
    harmonic     DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS domain_stats_harmonic_idx ON domain_stats (harmonic DESC);
`

// Store reads and writes domain statistics. Domain hashes are stored as
// signed BIGINT; the uint64 conversion round-trips bit for bit.
type Store struct {
	client *postgres.Client
	log    *slog.Logger
}

// New ensures the schema exists and returns the store.
func New(ctx context.Context, client *postgres.Client) (*Store, error) {
	if _, err := client.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating domain_stats schema: %w", err)
	}
	return &Store{client: client, log: logger.WithComponent("domainstats")}, nil
}

// DomainStat is one domain's persisted statistics row.
type DomainStat struct {
	DomainHash uint64
	Host       string
	Harmonic   float64
}

// UpsertCentrality replaces the harmonic centrality of every listed domain
// in one transaction. resolve maps a domain hash to its host name and may
// return an empty string.
func (s *Store) UpsertCentrality(ctx context.Context, centrality map[uint64]float64, resolve func(uint64) string) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO domain_stats (domain_hash, host, harmonic, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (domain_hash)
			DO UPDATE SET host = EXCLUDED.host, harmonic = EXCLUDED.harmonic, updated_at = now()`)
		if err != nil {
			return fmt.Errorf("preparing centrality upsert: %w", err)
		}
		defer stmt.Close()

		for domainHash, harmonic := range centrality {
			host := ""
			if resolve != nil {
				host = resolve(domainHash)
			}
			if _, err := stmt.ExecContext(ctx, int64(domainHash), host, harmonic); err != nil {
				return fmt.Errorf("upserting centrality for domain %d: %w", domainHash, err)
			}
		}
		s.log.Info("centrality stored", "domains", len(centrality))
		return nil
	})
}

// Harmonic returns the harmonic centrality for one domain. Unknown domains
// score zero.
func (s *Store) Harmonic(ctx context.Context, domainHash uint64) (float64, error) {
	var harmonic float64
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT harmonic FROM domain_stats WHERE domain_hash = $1`,
		int64(domainHash)).Scan(&harmonic)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading centrality for domain %d: %w", domainHash, err)
	}
	return harmonic, nil
}

// HarmonicBatch loads centrality for a set of domains in one query.
func (s *Store) HarmonicBatch(ctx context.Context, domainHashes []uint64) (map[uint64]float64, error) {
	result := make(map[uint64]float64, len(domainHashes))
	if len(domainHashes) == 0 {
		return result, nil
	}
	ids := make([]int64, len(domainHashes))
	for i, h := range domainHashes {
		ids[i] = int64(h)
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT domain_hash, harmonic FROM domain_stats WHERE domain_hash = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("loading centrality batch: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash int64
		var harmonic float64
		if err := rows.Scan(&hash, &harmonic); err != nil {
			return nil, fmt.Errorf("scanning centrality row: %w", err)
		}
		result[uint64(hash)] = harmonic
	}
	return result, rows.Err()
}

// Top returns the limit highest-centrality domains.
func (s *Store) Top(ctx context.Context, limit int) ([]DomainStat, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT domain_hash, host, harmonic FROM domain_stats
		 ORDER BY harmonic DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("loading top domains: %w", err)
	}
	defer rows.Close()

	var stats []DomainStat
	for rows.Next() {
		var stat DomainStat
		var hash int64
		if err := rows.Scan(&hash, &stat.Host, &stat.Harmonic); err != nil {
			return nil, fmt.Errorf("scanning domain row: %w", err)
		}
		stat.DomainHash = uint64(hash)
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
