// Package config loads application configuration from YAML files with
// environment-variable overrides; loaded values are not validated. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Search, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the domain
// statistics store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	BatchReady    string `yaml:"batchReady"`
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	MaxKeys  int64         `yaml:"maxKeys"`
}

// IndexConfig controls the sharded on-disk index: shard count, the per-shard
// hash-table directory size, posting-list caps, the mount layout, buffer
// sizes, and worker pool widths. It is threaded explicitly through every
// builder, reader, and pipeline constructor.
type IndexConfig struct {
	NumShards            int           `yaml:"numShards"`
	HashTableSize        uint64        `yaml:"hashTableSize"`
	MaxResultsPerSection int           `yaml:"maxResultsPerSection"`
	MaxSections          int           `yaml:"maxSections"`
	MountPrefix          string        `yaml:"mountPrefix"`
	NumMounts            int           `yaml:"numMounts"`
	IngestThreads        int           `yaml:"ingestThreads"`
	MergeThreads         int           `yaml:"mergeThreads"`
	BufferLen            int           `yaml:"bufferLen"`
	MaxBufferedRecords   int           `yaml:"maxBufferedRecords"`
	MaxCacheFileSize     int64         `yaml:"maxCacheFileSize"`
	MaxNumKeys           uint64        `yaml:"maxNumKeys"`
	MergeInterval        time.Duration `yaml:"mergeInterval"`
	HashTableShards      int           `yaml:"hashTableShards"`
	CommonWordThreshold  uint64        `yaml:"commonWordThreshold"`
}

// MaxResults returns the hard cap on posting-list length after a merge.
func (c IndexConfig) MaxResults() int {
	return c.MaxResultsPerSection * c.MaxSections
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults      int           `yaml:"maxResults"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	TimeoutPerShard time.Duration `yaml:"timeoutPerShard"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultIndexConfig returns the index defaults used when no file is supplied.
func DefaultIndexConfig() IndexConfig {
	return defaultConfig().Index
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "webindex",
			User:            "webindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "webindex-group",
			Topics: KafkaTopics{
				BatchReady:    "batch-ready",
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
			MaxKeys:  50_000_000,
		},
		Index: IndexConfig{
			NumShards:            1024,
			HashTableSize:        100_000,
			MaxResultsPerSection: 75_000,
			MaxSections:          4,
			MountPrefix:          "/mnt",
			NumMounts:            8,
			IngestThreads:        24,
			MergeThreads:         12,
			BufferLen:            1 << 20,
			MaxBufferedRecords:   500_000,
			MaxCacheFileSize:     300_000_000,
			MaxNumKeys:           10_000_000,
			MergeInterval:        5 * time.Second,
			HashTableShards:      16,
			CommonWordThreshold:  100,
		},
		Search: SearchConfig{
			MaxResults:      1000,
			DefaultLimit:    25,
			TimeoutPerShard: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads WI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WI_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("WI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("WI_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("WI_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("WI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("WI_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("WI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("WI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WI_INDEX_MOUNT_PREFIX"); v != "" {
		cfg.Index.MountPrefix = v
	}
	if v := os.Getenv("WI_INDEX_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.NumShards = n
		}
	}
	if v := os.Getenv("WI_INDEX_INGEST_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.IngestThreads = n
		}
	}
	if v := os.Getenv("WI_INDEX_MERGE_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MergeThreads = n
		}
	}
	if v := os.Getenv("WI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
