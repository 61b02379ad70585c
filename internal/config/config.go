// =============================================================================
// CAPCEE Ingestion - Configuration Module
// =============================================================================
//
// This module loads the application configuration and the department mapping
// files.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): server, database, redis, storage and
//      processing settings
//   2. Department Mapping Files (configs/*.yaml): one per department, with the
//      ordered column mappings of every file type the department uploads
//
// ENVIRONMENT OVERRIDES:
//   Deployment values and secrets can be supplied through INGEST_* variables,
//   which take precedence over the YAML file:
//     INGEST_SERVER_ADDR, INGEST_LOG_LEVEL, INGEST_LOG_FORMAT,
//     INGEST_DB_HOST, INGEST_DB_PORT, INGEST_DB_NAME, INGEST_DB_USER,
//     INGEST_DB_PASSWORD, INGEST_DB_SSL_MODE,
//     INGEST_REDIS_ADDR, INGEST_REDIS_PASSWORD,
//     INGEST_STORAGE_BACKEND, INGEST_STORAGE_DIR,
//     INGEST_MINIO_ENDPOINT, INGEST_MINIO_ACCESS_KEY, INGEST_MINIO_SECRET_KEY,
//     INGEST_MINIO_BUCKET
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the global application configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the slog handler: "json" or "text".
	// Default: "json"
	LogFormat string `yaml:"log_format"`

	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Mappings   MappingsConfig   `yaml:"mappings"`
	Upload     UploadConfig     `yaml:"upload"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SSLMode is passed through as sslmode.
	// Default: "disable"
	SSLMode string `yaml:"ssl_mode"`

	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32 `yaml:"max_conns"`
}

// RedisConfig configures the Redis client used for the task queue and
// completion events.
type RedisConfig struct {
	// Addr is host:port. An empty address disables Redis entirely.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// QueueKey is the list holding queued file ids.
	// Default: "ingest:queue"
	QueueKey string `yaml:"queue_key"`

	// EventsChannel is the pub/sub channel for completion events.
	// Default: "ingest:file-events"
	EventsChannel string `yaml:"events_channel"`
}

// StorageConfig selects where uploaded bytes are kept.
type StorageConfig struct {
	// Backend is "local" or "minio".
	// Default: "local"
	Backend string `yaml:"backend"`

	// Dir is the root directory of the local backend.
	// Default: "./storage/uploads"
	Dir string `yaml:"dir"`

	// UseDateSubdirs stores uploads under YYYY/MM/DD.
	// Default: true (set in the sample config)
	UseDateSubdirs bool `yaml:"use_date_subdirs"`

	MinIO MinIOConfig `yaml:"minio"`
}

// MinIOConfig configures the S3-compatible backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// ProcessingConfig tunes the ingestion pipeline and its workers.
type ProcessingConfig struct {
	// ChunkSize is the number of rows read per batch.
	// Default: 1000
	ChunkSize int `yaml:"chunk_size"`

	// Workers is the number of files processed concurrently.
	// Default: 4
	Workers int `yaml:"workers"`

	// JobTimeout is the hard wall-clock limit of one run.
	// Default: 1h
	JobTimeout time.Duration `yaml:"job_timeout"`

	// MaxErrorMessages caps row-scoped messages kept per file.
	// Default: 500
	MaxErrorMessages int `yaml:"max_error_messages"`

	// Queue is "memory" (in-process) or "redis".
	// Default: "memory"
	Queue string `yaml:"queue"`

	// CSVDelimiter is the field separator for CSV uploads.
	// Default: ","
	CSVDelimiter string `yaml:"csv_delimiter"`
}

// MappingsConfig selects the column mapping registry.
type MappingsConfig struct {
	// Source is "files" (department YAML files) or "database".
	// Default: "files"
	Source string `yaml:"source"`

	// Dir holds the department mapping files.
	// Default: "./configs"
	Dir string `yaml:"dir"`

	// CacheSize and CacheTTL configure the lookup cache in front of the
	// database registry.
	// Defaults: 128 entries, 5m
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// UploadConfig configures the HTTP upload endpoint.
type UploadConfig struct {
	// MaxFilesPerRequest caps the files accepted in one request.
	// Default: 20
	MaxFilesPerRequest int `yaml:"max_files_per_request"`

	// AllowedExtensions lists accepted extensions with the leading dot.
	// Default: [".xlsx", ".xls", ".csv"]
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// MaxFileSizeMB is the largest file any department accepts. Together
	// with MaxFilesPerRequest it caps the upload request body.
	// Default: 50
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load reads the main configuration.
//
// PARAMETERS:
//   - path: The YAML file. A missing file is not an error when path is the
//     default; everything then comes from defaults and the environment.
//
// RETURNS:
//   - The configuration with defaults and environment overrides applied.
//   - An error if the file cannot be parsed or the result is invalid.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Defaults and environment only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset option.
func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "capcee"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "capcee"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Redis.QueueKey == "" {
		cfg.Redis.QueueKey = "ingest:queue"
	}
	if cfg.Redis.EventsChannel == "" {
		cfg.Redis.EventsChannel = "ingest:file-events"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./storage/uploads"
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = "capcee-uploads"
	}

	if cfg.Processing.ChunkSize == 0 {
		cfg.Processing.ChunkSize = 1000
	}
	if cfg.Processing.Workers == 0 {
		cfg.Processing.Workers = 4
	}
	if cfg.Processing.JobTimeout == 0 {
		cfg.Processing.JobTimeout = time.Hour
	}
	if cfg.Processing.MaxErrorMessages == 0 {
		cfg.Processing.MaxErrorMessages = 500
	}
	if cfg.Processing.Queue == "" {
		cfg.Processing.Queue = "memory"
	}
	if cfg.Processing.CSVDelimiter == "" {
		cfg.Processing.CSVDelimiter = ","
	}

	if cfg.Mappings.Source == "" {
		cfg.Mappings.Source = "files"
	}
	if cfg.Mappings.Dir == "" {
		cfg.Mappings.Dir = "./configs"
	}
	if cfg.Mappings.CacheSize == 0 {
		cfg.Mappings.CacheSize = 128
	}
	if cfg.Mappings.CacheTTL == 0 {
		cfg.Mappings.CacheTTL = 5 * time.Minute
	}

	if cfg.Upload.MaxFilesPerRequest == 0 {
		cfg.Upload.MaxFilesPerRequest = 20
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{".xlsx", ".xls", ".csv"}
	}
	if cfg.Upload.MaxFileSizeMB == 0 {
		cfg.Upload.MaxFileSizeMB = 50
	}
}

// applyEnv overrides deployment values from INGEST_* variables.
func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "INGEST_SERVER_ADDR")
	setString(&cfg.LogLevel, "INGEST_LOG_LEVEL")
	setString(&cfg.LogFormat, "INGEST_LOG_FORMAT")

	setString(&cfg.Database.Host, "INGEST_DB_HOST")
	if err := setInt(&cfg.Database.Port, "INGEST_DB_PORT"); err != nil {
		return err
	}
	setString(&cfg.Database.Name, "INGEST_DB_NAME")
	setString(&cfg.Database.User, "INGEST_DB_USER")
	setString(&cfg.Database.Password, "INGEST_DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "INGEST_DB_SSL_MODE")

	setString(&cfg.Redis.Addr, "INGEST_REDIS_ADDR")
	setString(&cfg.Redis.Password, "INGEST_REDIS_PASSWORD")

	setString(&cfg.Storage.Backend, "INGEST_STORAGE_BACKEND")
	setString(&cfg.Storage.Dir, "INGEST_STORAGE_DIR")
	setString(&cfg.Storage.MinIO.Endpoint, "INGEST_MINIO_ENDPOINT")
	setString(&cfg.Storage.MinIO.AccessKey, "INGEST_MINIO_ACCESS_KEY")
	setString(&cfg.Storage.MinIO.SecretKey, "INGEST_MINIO_SECRET_KEY")
	setString(&cfg.Storage.MinIO.Bucket, "INGEST_MINIO_BUCKET")
	if err := setInt(&cfg.Upload.MaxFileSizeMB, "INGEST_UPLOAD_MAX_FILE_SIZE_MB"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

// validate checks enumerations and ranges.
func validate(cfg *Config) error {
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}
	switch cfg.Storage.Backend {
	case "local":
	case "minio":
		if cfg.Storage.MinIO.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("storage.backend must be local or minio, got %q", cfg.Storage.Backend)
	}
	switch cfg.Processing.Queue {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis queue")
		}
	default:
		return fmt.Errorf("processing.queue must be memory or redis, got %q", cfg.Processing.Queue)
	}
	if cfg.Mappings.Source != "files" && cfg.Mappings.Source != "database" {
		return fmt.Errorf("mappings.source must be files or database, got %q", cfg.Mappings.Source)
	}
	if cfg.Processing.ChunkSize < 1 {
		return fmt.Errorf("processing.chunk_size must be positive")
	}
	if cfg.Processing.Workers < 1 {
		return fmt.Errorf("processing.workers must be positive")
	}
	if cfg.Upload.MaxFileSizeMB < 1 {
		return fmt.Errorf("upload.max_file_size_mb must be positive")
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// multipartOverhead covers form fields and part headers of an upload.
const multipartOverhead = 1 << 20

// MaxRequestBytes is the largest upload body accepted: every file at the
// size limit plus multipart overhead. Zero means no cap.
func (u UploadConfig) MaxRequestBytes() int64 {
	if u.MaxFilesPerRequest <= 0 || u.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(u.MaxFilesPerRequest)*int64(u.MaxFileSizeMB)<<20 + multipartOverhead
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode,
	)
}

// MigrateURL returns the golang-migrate URL for the pgx5 driver.
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ParseLogLevel maps a configured level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn or error, got %q", level)
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	level, _ := ParseLogLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
