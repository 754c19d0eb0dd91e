package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// RedisConfig covers the shared blank-verdict cache and job status store.
type RedisConfig struct {
	Enabled       bool
	URL           string
	BlankCacheTTL time.Duration
	StatusTTL     time.Duration
}

// StorageConfig covers S3 input download and result upload.
type StorageConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ResultPrefix    string
	UploadResults   bool
}

// PipelineConfig holds process-wide pipeline paths and limits. Per-job tunables
// live in Settings.
type PipelineConfig struct {
	OutputDir    string
	TempDir      string
	SettingsFile string
	MaxWorkers   int
	TaskTimeout  time.Duration // 0 keeps the settings file value
	TempMaxAge   time.Duration
	RenderDPI    float64 // 0 keeps the settings file value
	FileRoot     string  // local paths accepted over HTTP; empty allows remote refs only
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Server   ServerConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/printorder.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_printorder",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Server = ServerConfig{
		Addr:            getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:       parseBool(getEnv("REDIS_ENABLED", "0")),
		URL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		BlankCacheTTL: parseDuration(getEnv("BLANK_CACHE_TTL", "24h"), 24*time.Hour),
		StatusTTL:     parseDuration(getEnv("STATUS_TTL", "168h"), 7*24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		Bucket:          getEnv("AWS_S3_BUCKET", ""),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ResultPrefix:    strings.Trim(getEnv("RESULT_PREFIX", "results"), "/"),
		UploadResults:   parseBool(getEnv("UPLOAD_RESULTS", "0")),
	}

	cfg.Pipeline = PipelineConfig{
		OutputDir:    getEnv("OUTPUT_DIR", ""),
		TempDir:      getEnv("TEMP_DIR", os.TempDir()),
		SettingsFile: getEnv("SETTINGS_FILE", ""),
		MaxWorkers:   parseInt(getEnv("MAX_WORKERS", "0"), 0),
		TaskTimeout:  parseDuration(getEnv("TASK_TIMEOUT", ""), 0),
		TempMaxAge:   parseDuration(getEnv("TEMP_MAX_AGE", "6h"), 6*time.Hour),
		RenderDPI:    parseFloat(getEnv("RENDER_DPI", ""), 0),
		FileRoot:     getEnv("FILE_ROOT", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
