// Package config holds the settings shared by the search service and the
// bm25ctl tool: a YAML file over built-in defaults, then BM25_* environment
// overrides, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ReloadTimeout   time.Duration `yaml:"reloadTimeout"`
	// Per-client request budgets per minute. Zero disables the limit.
	SearchPerMinute int `yaml:"searchPerMinute"`
	ReloadPerMinute int `yaml:"reloadPerMinute"`
	// AdminToken, when set, must accompany reload requests.
	AdminToken  string   `yaml:"adminToken"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// RankingConfig holds the BM25 parameters and query limits.
type RankingConfig struct {
	K1             float64 `yaml:"k1"`
	B              float64 `yaml:"b"`
	Lowercase      bool    `yaml:"lowercase"`
	NormalizeWidth bool    `yaml:"normalizeWidth"`
	DefaultTopK    int     `yaml:"defaultTopK"`
	MaxTopK        int     `yaml:"maxTopK"`
}

// IndexerConfig locates the index file and bounds build parallelism.
type IndexerConfig struct {
	DataDir      string `yaml:"dataDir"`
	IndexFile    string `yaml:"indexFile"`
	BuildWorkers int    `yaml:"buildWorkers"`
}

// IndexPath is IndexFile resolved against DataDir.
func (c IndexerConfig) IndexPath() string {
	if filepath.IsAbs(c.IndexFile) {
		return c.IndexFile
	}
	return filepath.Join(c.DataDir, c.IndexFile)
}

// RedisConfig holds Redis connection and result caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexReload string `yaml:"indexReload"`
}

// PostgresConfig holds PostgreSQL connection parameters and the corpus
// query used by the build command.
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
	CorpusQuery     string        `yaml:"corpusQuery"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
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

// Load layers the file at path (optional) and the environment over Default
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  5 * time.Second,
			ReloadTimeout:   2 * time.Minute,
			ReloadPerMinute: 6,
		},
		Ranking: RankingConfig{
			K1:          index.DefaultK1,
			B:           index.DefaultB,
			DefaultTopK: 10,
			MaxTopK:     1000,
		},
		Indexer: IndexerConfig{
			DataDir:   "./data",
			IndexFile: "corpus.bm25",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "bm25-searcher",
			Topics: KafkaTopics{
				IndexReload: "bm25.index.reload",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "bm25",
			User:            "bm25",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			CorpusQuery:     "SELECT id, body FROM documents ORDER BY id",
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

// Validate rejects configurations the engine or service cannot run with.
func (c *Config) Validate() error {
	if err := (index.Params{K1: c.Ranking.K1, B: c.Ranking.B}).Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if c.Ranking.DefaultTopK <= 0 {
		return fmt.Errorf("%w: ranking.defaultTopK must be positive, got %d", apperrors.ErrInvalidInput, c.Ranking.DefaultTopK)
	}
	if c.Ranking.MaxTopK < c.Ranking.DefaultTopK {
		return fmt.Errorf("%w: ranking.maxTopK (%d) is below defaultTopK (%d)", apperrors.ErrInvalidInput, c.Ranking.MaxTopK, c.Ranking.DefaultTopK)
	}
	if c.Server.SearchPerMinute < 0 || c.Server.ReloadPerMinute < 0 {
		return fmt.Errorf("%w: server rate limits must not be negative", apperrors.ErrInvalidInput)
	}
	if c.Indexer.IndexFile == "" {
		return fmt.Errorf("%w: indexer.indexFile is required", apperrors.ErrInvalidInput)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topics.IndexReload == "") {
		return fmt.Errorf("%w: kafka needs brokers and an indexReload topic", apperrors.ErrInvalidInput)
	}
	return nil
}

// applyEnvOverrides reads BM25_* environment variables and overrides the
// corresponding config fields. Unparseable numbers are ignored.
func applyEnvOverrides(cfg *Config) {
	setInt("BM25_SERVER_PORT", &cfg.Server.Port)
	setInt("BM25_SERVER_SEARCH_PER_MINUTE", &cfg.Server.SearchPerMinute)
	setInt("BM25_SERVER_RELOAD_PER_MINUTE", &cfg.Server.ReloadPerMinute)
	setString("BM25_SERVER_ADMIN_TOKEN", &cfg.Server.AdminToken)
	setList("BM25_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setFloat("BM25_RANKING_K1", &cfg.Ranking.K1)
	setFloat("BM25_RANKING_B", &cfg.Ranking.B)
	setBool("BM25_RANKING_LOWERCASE", &cfg.Ranking.Lowercase)
	setBool("BM25_RANKING_NORMALIZE_WIDTH", &cfg.Ranking.NormalizeWidth)
	setInt("BM25_RANKING_DEFAULT_TOP_K", &cfg.Ranking.DefaultTopK)
	setInt("BM25_RANKING_MAX_TOP_K", &cfg.Ranking.MaxTopK)
	setString("BM25_INDEXER_DATA_DIR", &cfg.Indexer.DataDir)
	setString("BM25_INDEXER_INDEX_FILE", &cfg.Indexer.IndexFile)
	setInt("BM25_INDEXER_BUILD_WORKERS", &cfg.Indexer.BuildWorkers)
	setBool("BM25_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("BM25_REDIS_ADDR", &cfg.Redis.Addr)
	setString("BM25_REDIS_PASSWORD", &cfg.Redis.Password)
	setBool("BM25_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	setList("BM25_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	setString("BM25_KAFKA_RELOAD_TOPIC", &cfg.Kafka.Topics.IndexReload)
	setString("BM25_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("BM25_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("BM25_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("BM25_POSTGRES_USER", &cfg.Postgres.User)
	setString("BM25_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("BM25_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setString("BM25_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("BM25_LOGGING_FORMAT", &cfg.Logging.Format)
	setBool("BM25_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setInt("BM25_METRICS_PORT", &cfg.Metrics.Port)
}

func setEnv[T any](key string, dst *T, parse func(string) (T, error)) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	if v, err := parse(raw); err == nil {
		*dst = v
	}
}

func setString(key string, dst *string) {
	setEnv(key, dst, func(s string) (string, error) { return s, nil })
}

func setInt(key string, dst *int) { setEnv(key, dst, strconv.Atoi) }

func setBool(key string, dst *bool) { setEnv(key, dst, strconv.ParseBool) }

func setFloat(key string, dst *float64) {
	setEnv(key, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func setList(key string, dst *[]string) {
	setEnv(key, dst, func(s string) ([]string, error) {
		var out []string
		for part := range strings.SplitSeq(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	})
}
