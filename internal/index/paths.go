package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openwebindex/platform/pkg/config"
)

// shardPaths resolves the on-disk file names for one shard. Shards are
// distributed over NumMounts mount points by shard ID to spread I/O across
// disks:
//
//	{mountPrefix}/{shardID mod numMounts}/full_text/{dbName}/{shardID}.data
type shardPaths struct {
	cfg     config.IndexConfig
	dbName  string
	shardID int
}

func newShardPaths(cfg config.IndexConfig, dbName string, shardID int) shardPaths {
	return shardPaths{cfg: cfg, dbName: dbName, shardID: shardID}
}

func (p shardPaths) mountpoint() string {
	mounts := p.cfg.NumMounts
	if mounts <= 0 {
		mounts = 1
	}
	return fmt.Sprintf("%d", p.shardID%mounts)
}

func (p shardPaths) dir() string {
	return filepath.Join(p.cfg.MountPrefix, p.mountpoint(), "full_text", p.dbName)
}

func (p shardPaths) data() string {
	return filepath.Join(p.dir(), fmt.Sprintf("%d.data", p.shardID))
}

func (p shardPaths) keys() string {
	return filepath.Join(p.dir(), fmt.Sprintf("%d.keys", p.shardID))
}

func (p shardPaths) meta() string {
	return filepath.Join(p.dir(), fmt.Sprintf("%d.meta", p.shardID))
}

func (p shardPaths) cache() string {
	return filepath.Join(p.dir(), fmt.Sprintf("%d.cache", p.shardID))
}

func (p shardPaths) cacheKeys() string {
	return filepath.Join(p.dir(), fmt.Sprintf("%d.cache.keys", p.shardID))
}

// createDirectories creates the shard directories on every mount point.
func createDirectories(cfg config.IndexConfig, dbName string) error {
	mounts := cfg.NumMounts
	if mounts <= 0 {
		mounts = 1
	}
	for i := 0; i < mounts; i++ {
		dir := filepath.Join(cfg.MountPrefix, fmt.Sprintf("%d", i), "full_text", dbName)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating shard directory %s: %w", dir, err)
		}
	}
	return nil
}
