package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port = %d", cfg.Server.Port)
	}
	if cfg.Index.NumShards != 1024 {
		t.Fatalf("default shard count = %d", cfg.Index.NumShards)
	}
	if cfg.Index.MaxResults() != 300_000 {
		t.Fatalf("default result cap = %d", cfg.Index.MaxResults())
	}
	if cfg.Search.DefaultLimit <= 0 || cfg.Search.DefaultLimit > cfg.Search.MaxResults {
		t.Fatalf("default limit %d out of range", cfg.Search.DefaultLimit)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	yaml := `
server:
  port: 9999
index:
  numShards: 8
  mountPrefix: /data/index
  mergeInterval: 250ms
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d, want file value 9999", cfg.Server.Port)
	}
	if cfg.Index.NumShards != 8 {
		t.Fatalf("shards = %d, want file value 8", cfg.Index.NumShards)
	}
	if cfg.Index.MountPrefix != "/data/index" {
		t.Fatalf("mount prefix = %q", cfg.Index.MountPrefix)
	}
	if cfg.Index.MergeInterval != 250*time.Millisecond {
		t.Fatalf("merge interval = %v", cfg.Index.MergeInterval)
	}
	// Values absent from the file keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WI_SERVER_PORT", "7070")
	t.Setenv("WI_INDEX_NUM_SHARDS", "32")
	t.Setenv("WI_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d, want env value 7070", cfg.Server.Port)
	}
	if cfg.Index.NumShards != 32 {
		t.Fatalf("shards = %d, want env value 32", cfg.Index.NumShards)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, Database: "webindex",
		User: "svc", Password: "secret", SSLMode: "disable",
	}
	want := "host=db port=5432 user=svc password=secret dbname=webindex sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
}
