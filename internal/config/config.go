// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Parser     ParserConfig     `json:"parser"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Search     SearchConfig     `json:"search"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Example    ExampleConfig    `json:"example"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig configures the MCP runtime and its resilience wrappers.
type ServerConfig struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	HTTPAddr      string `json:"http_addr"`
	MaxConcurrent int    `json:"max_concurrent"`
	RetryAttempts int    `json:"retry_attempts"`

	// Per-method request deadlines.
	SearchTimeout     time.Duration `json:"search_timeout"`
	SchemaTimeout     time.Duration `json:"schema_timeout"`
	ExampleTimeout    time.Duration `json:"example_timeout"`
	CategoriesTimeout time.Duration `json:"categories_timeout"`

	// Circuit breaker tuning.
	BreakerFailureThreshold int           `json:"breaker_failure_threshold"`
	BreakerSuccessThreshold int           `json:"breaker_success_threshold"`
	BreakerRecoveryTimeout  time.Duration `json:"breaker_recovery_timeout"`

	PoolAcquireTimeout time.Duration `json:"pool_acquire_timeout"`
}

// StorageConfig configures the SQLite store and its backups.
type StorageConfig struct {
	DatabasePath        string        `json:"database_path"`
	BusyTimeout         time.Duration `json:"busy_timeout"`
	MaxOpenConns        int           `json:"max_open_conns"`
	MaxIdleConns        int           `json:"max_idle_conns"`
	BackupDir           string        `json:"backup_dir"`
	BackupCompress      bool          `json:"backup_compress"`
	BackupKeep          int           `json:"backup_keep"`
	BackupRetentionDays int           `json:"backup_retention_days"`
}

// ParserConfig bounds the streaming specification parser.
type ParserConfig struct {
	MaxFileSize      int64 `json:"max_file_size_bytes"`
	ChunkSize        int   `json:"chunk_size_bytes"`
	ProgressInterval int64 `json:"progress_interval_bytes"`
	MemoryCeiling    int64 `json:"memory_ceiling_bytes"`
	MaxErrors        int   `json:"max_errors"`
	StrictMode       bool  `json:"strict_mode"`
}

// PipelineConfig configures the ingestion pipeline.
type PipelineConfig struct {
	BatchConcurrency  int  `json:"batch_concurrency"`
	BuildIndex        bool `json:"build_index"`
	ValidateIntegrity bool `json:"validate_integrity"`
}

// SearchConfig configures the index manager and query processor.
type SearchConfig struct {
	IndexBatchSize int    `json:"index_batch_size"`
	SynonymsPath   string `json:"synonyms_path"`
	StopWordsPath  string `json:"stop_words_path"`
}

// MonitoringConfig holds the performance thresholds and alert retention.
type MonitoringConfig struct {
	SearchP95Threshold     time.Duration `json:"search_p95_threshold"`
	SchemaP95Threshold     time.Duration `json:"schema_p95_threshold"`
	ExampleP95Threshold    time.Duration `json:"example_p95_threshold"`
	CategoriesP95Threshold time.Duration `json:"categories_p95_threshold"`
	MaxErrorRate           float64       `json:"max_error_rate"`
	AlertBufferSize        int           `json:"alert_buffer_size"`
	P95WindowSize          int           `json:"p95_window_size"`
}

// ExampleConfig configures code-sample generation.
type ExampleConfig struct {
	DefaultBaseURL string `json:"default_base_url"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the built-in defaults without consulting the
// environment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "openapi-mcp-server",
			Version:       "dev",
			HTTPAddr:      ":9850",
			MaxConcurrent: 16,
			RetryAttempts: 3,

			SearchTimeout:     5 * time.Second,
			SchemaTimeout:     10 * time.Second,
			ExampleTimeout:    10 * time.Second,
			CategoriesTimeout: 5 * time.Second,

			BreakerFailureThreshold: 5,
			BreakerSuccessThreshold: 2,
			BreakerRecoveryTimeout:  30 * time.Second,

			PoolAcquireTimeout: 2 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath:        defaultDatabasePath(),
			BusyTimeout:         5 * time.Second,
			MaxOpenConns:        8,
			MaxIdleConns:        4,
			BackupDir:           "backups",
			BackupCompress:      true,
			BackupKeep:          5,
			BackupRetentionDays: 30,
		},
		Parser: ParserConfig{
			MaxFileSize:      10 * 1024 * 1024,
			ChunkSize:        64 * 1024,
			ProgressInterval: 1024 * 1024,
			MemoryCeiling:    256 * 1024 * 1024,
			MaxErrors:        25,
			StrictMode:       false,
		},
		Pipeline: PipelineConfig{
			BatchConcurrency:  3,
			BuildIndex:        true,
			ValidateIntegrity: true,
		},
		Search: SearchConfig{
			IndexBatchSize: 200,
		},
		Monitoring: MonitoringConfig{
			SearchP95Threshold:     200 * time.Millisecond,
			SchemaP95Threshold:     500 * time.Millisecond,
			ExampleP95Threshold:    2 * time.Second,
			CategoriesP95Threshold: 100 * time.Millisecond,
			MaxErrorRate:           0.05,
			AlertBufferSize:        100,
			P95WindowSize:          100,
		},
		Example: ExampleConfig{
			DefaultBaseURL: "https://api.example.com",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from environment variables, consulting a
// .env file when present. Unset variables keep the defaults.
func LoadConfig() (*Config, error) {
	// A missing .env file is not an error; env vars alone are fine.
	_ = godotenv.Load()

	def := DefaultConfig()
	cfg := &Config{
		Server: ServerConfig{
			Name:          getEnv("OPENAPI_MCP_SERVER_NAME", def.Server.Name),
			Version:       getEnv("OPENAPI_MCP_SERVER_VERSION", def.Server.Version),
			HTTPAddr:      getEnv("OPENAPI_MCP_HTTP_ADDR", def.Server.HTTPAddr),
			MaxConcurrent: getEnvInt("OPENAPI_MCP_MAX_CONCURRENT", def.Server.MaxConcurrent),
			RetryAttempts: getEnvInt("OPENAPI_MCP_RETRY_ATTEMPTS", def.Server.RetryAttempts),

			SearchTimeout:     getEnvDuration("OPENAPI_MCP_SEARCH_TIMEOUT", def.Server.SearchTimeout),
			SchemaTimeout:     getEnvDuration("OPENAPI_MCP_SCHEMA_TIMEOUT", def.Server.SchemaTimeout),
			ExampleTimeout:    getEnvDuration("OPENAPI_MCP_EXAMPLE_TIMEOUT", def.Server.ExampleTimeout),
			CategoriesTimeout: getEnvDuration("OPENAPI_MCP_CATEGORIES_TIMEOUT", def.Server.CategoriesTimeout),

			BreakerFailureThreshold: getEnvInt("OPENAPI_MCP_BREAKER_FAILURES", def.Server.BreakerFailureThreshold),
			BreakerSuccessThreshold: getEnvInt("OPENAPI_MCP_BREAKER_SUCCESSES", def.Server.BreakerSuccessThreshold),
			BreakerRecoveryTimeout:  getEnvDuration("OPENAPI_MCP_BREAKER_RECOVERY", def.Server.BreakerRecoveryTimeout),

			PoolAcquireTimeout: getEnvDuration("OPENAPI_MCP_POOL_ACQUIRE_TIMEOUT", def.Server.PoolAcquireTimeout),
		},
		Storage: StorageConfig{
			DatabasePath:        getEnv("OPENAPI_MCP_DB_PATH", def.Storage.DatabasePath),
			BusyTimeout:         getEnvDuration("OPENAPI_MCP_DB_BUSY_TIMEOUT", def.Storage.BusyTimeout),
			MaxOpenConns:        getEnvInt("OPENAPI_MCP_DB_MAX_OPEN_CONNS", def.Storage.MaxOpenConns),
			MaxIdleConns:        getEnvInt("OPENAPI_MCP_DB_MAX_IDLE_CONNS", def.Storage.MaxIdleConns),
			BackupDir:           getEnv("OPENAPI_MCP_BACKUP_DIR", def.Storage.BackupDir),
			BackupCompress:      getEnvBool("OPENAPI_MCP_BACKUP_COMPRESS", def.Storage.BackupCompress),
			BackupKeep:          getEnvInt("OPENAPI_MCP_BACKUP_KEEP", def.Storage.BackupKeep),
			BackupRetentionDays: getEnvInt("OPENAPI_MCP_BACKUP_RETENTION_DAYS", def.Storage.BackupRetentionDays),
		},
		Parser: ParserConfig{
			MaxFileSize:      getEnvInt64("OPENAPI_MCP_MAX_FILE_SIZE", def.Parser.MaxFileSize),
			ChunkSize:        getEnvInt("OPENAPI_MCP_PARSER_CHUNK_SIZE", def.Parser.ChunkSize),
			ProgressInterval: getEnvInt64("OPENAPI_MCP_PROGRESS_INTERVAL", def.Parser.ProgressInterval),
			MemoryCeiling:    getEnvInt64("OPENAPI_MCP_MEMORY_CEILING", def.Parser.MemoryCeiling),
			MaxErrors:        getEnvInt("OPENAPI_MCP_PARSER_MAX_ERRORS", def.Parser.MaxErrors),
			StrictMode:       getEnvBool("OPENAPI_MCP_STRICT", def.Parser.StrictMode),
		},
		Pipeline: PipelineConfig{
			BatchConcurrency:  getEnvInt("OPENAPI_MCP_BATCH_CONCURRENCY", def.Pipeline.BatchConcurrency),
			BuildIndex:        getEnvBool("OPENAPI_MCP_BUILD_INDEX", def.Pipeline.BuildIndex),
			ValidateIntegrity: getEnvBool("OPENAPI_MCP_VALIDATE_INTEGRITY", def.Pipeline.ValidateIntegrity),
		},
		Search: SearchConfig{
			IndexBatchSize: getEnvInt("OPENAPI_MCP_INDEX_BATCH_SIZE", def.Search.IndexBatchSize),
			SynonymsPath:   getEnv("OPENAPI_MCP_SYNONYMS_PATH", def.Search.SynonymsPath),
			StopWordsPath:  getEnv("OPENAPI_MCP_STOP_WORDS_PATH", def.Search.StopWordsPath),
		},
		Monitoring: MonitoringConfig{
			SearchP95Threshold:     getEnvDuration("OPENAPI_MCP_SEARCH_P95", def.Monitoring.SearchP95Threshold),
			SchemaP95Threshold:     getEnvDuration("OPENAPI_MCP_SCHEMA_P95", def.Monitoring.SchemaP95Threshold),
			ExampleP95Threshold:    getEnvDuration("OPENAPI_MCP_EXAMPLE_P95", def.Monitoring.ExampleP95Threshold),
			CategoriesP95Threshold: getEnvDuration("OPENAPI_MCP_CATEGORIES_P95", def.Monitoring.CategoriesP95Threshold),
			MaxErrorRate:           getEnvFloat("OPENAPI_MCP_MAX_ERROR_RATE", def.Monitoring.MaxErrorRate),
			AlertBufferSize:        getEnvInt("OPENAPI_MCP_ALERT_BUFFER", def.Monitoring.AlertBufferSize),
			P95WindowSize:          getEnvInt("OPENAPI_MCP_P95_WINDOW", def.Monitoring.P95WindowSize),
		},
		Example: ExampleConfig{
			DefaultBaseURL: getEnv("OPENAPI_MCP_DEFAULT_BASE_URL", def.Example.DefaultBaseURL),
		},
		Logging: LoggingConfig{
			Level:  getEnv("OPENAPI_MCP_LOG_LEVEL", def.Logging.Level),
			Format: getEnv("OPENAPI_MCP_LOG_FORMAT", def.Logging.Format),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Parser.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Parser.MaxFileSize)
	}
	if c.Parser.ChunkSize <= 0 {
		return fmt.Errorf("parser chunk size must be positive, got %d", c.Parser.ChunkSize)
	}
	if c.Parser.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", c.Parser.ProgressInterval)
	}
	if c.Pipeline.BatchConcurrency <= 0 {
		return fmt.Errorf("batch concurrency must be positive, got %d", c.Pipeline.BatchConcurrency)
	}
	if c.Server.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}
	if c.Monitoring.MaxErrorRate < 0 || c.Monitoring.MaxErrorRate > 1 {
		return fmt.Errorf("max error rate must be within [0,1], got %f", c.Monitoring.MaxErrorRate)
	}
	return nil
}

// TimeoutFor returns the configured deadline for an MCP method name.
func (c *ServerConfig) TimeoutFor(method string) time.Duration {
	switch method {
	case "searchEndpoints":
		return c.SearchTimeout
	case "getSchema":
		return c.SchemaTimeout
	case "getExample":
		return c.ExampleTimeout
	case "getEndpointCategories":
		return c.CategoriesTimeout
	default:
		return 10 * time.Second
	}
}

// P95ThresholdFor returns the alerting threshold for an MCP method name.
func (c *MonitoringConfig) P95ThresholdFor(method string) time.Duration {
	switch method {
	case "searchEndpoints":
		return c.SearchP95Threshold
	case "getSchema":
		return c.SchemaP95Threshold
	case "getExample":
		return c.ExampleP95Threshold
	case "getEndpointCategories":
		return c.CategoriesP95Threshold
	default:
		return time.Second
	}
}

func defaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".openapi-mcp", "openapi.db")
	}
	return "openapi.db"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
