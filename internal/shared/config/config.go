package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"resumate/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Env               string        `yaml:"env"`
	Port              string        `yaml:"port"`
	BindAddr          string        `yaml:"bind_addr"`
	CORSAllowOrigin   []string      `yaml:"cors_allow_origins"`
	StoreDriver       string        `yaml:"store_driver"`
	SQLitePath        string        `yaml:"sqlite_path"`
	DatabaseURL       string        `yaml:"database_url"`
	ObjectStoreType   string        `yaml:"object_store"`
	LocalStoreDir     string        `yaml:"local_store_dir"`
	AWSRegion         string        `yaml:"aws_region"`
	S3Bucket          string        `yaml:"s3_bucket"`
	S3Prefix          string        `yaml:"s3_prefix"`
	LLMAPIURL         string        `yaml:"llm_api_url"`
	LLMTimeout        time.Duration `yaml:"-"`
	TuneFlushInterval time.Duration `yaml:"-"`
	KeywordsFile      string        `yaml:"keywords_file"`
	PeerTransport     string        `yaml:"peer_transport"`
	PeerRelayURL      string        `yaml:"peer_relay_url"`
	RedisAddr         string        `yaml:"redis_addr"`
	LogLevel          string        `yaml:"log_level"`

	LLMTimeoutSeconds   int `yaml:"llm_timeout_seconds"`
	TuneFlushIntervalMs int `yaml:"tune_flush_interval_ms"`

	// RateLimitRPS of 0 disables API rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Load reads configuration from environment variables with sensible defaults.
// Values from CONFIG_FILE, when set, replace the built-in defaults; environment
// variables win over both.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	file := Config{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			telemetry.Warn("config.file_ignored", map[string]any{"path": path, "error": err})
		} else {
			file = loaded
		}
	}

	env := normalizeEnv(getEnv("ENV", orDefault(file.Env, "dev")))
	cfg := Config{
		Env:             env,
		Port:            getEnv("PORT", orDefault(file.Port, "8080")),
		BindAddr:        getEnv("BIND_ADDR", file.BindAddr),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", orDefault(strings.Join(file.CORSAllowOrigin, ","), "http://localhost:4321"))),
		StoreDriver:     normalizeStoreDriver(getEnv("STORE_DRIVER", orDefault(file.StoreDriver, "sqlite"))),
		SQLitePath:      getEnv("SQLITE_PATH", orDefault(file.SQLitePath, "./data/resumate.db")),
		DatabaseURL:     getEnv("DATABASE_URL", file.DatabaseURL),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", orDefault(file.ObjectStoreType, "local"))),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", orDefault(file.LocalStoreDir, "./data/backups")),
		AWSRegion:       getEnv("AWS_REGION", file.AWSRegion),
		S3Bucket:        getEnv("S3_BUCKET", file.S3Bucket),
		S3Prefix:        getEnv("S3_PREFIX", file.S3Prefix),
		LLMAPIURL:       getEnv("LLM_API_URL", file.LLMAPIURL),
		KeywordsFile:    getEnv("KEYWORDS_FILE", file.KeywordsFile),
		PeerTransport:   normalizePeerTransport(getEnv("PEER_TRANSPORT", orDefault(file.PeerTransport, "memory"))),
		PeerRelayURL:    getEnv("PEER_RELAY_URL", file.PeerRelayURL),
		RedisAddr:       getEnv("REDIS_ADDR", orDefault(file.RedisAddr, "localhost:6379")),
		LogLevel:        getEnv("LOG_LEVEL", file.LogLevel),
	}

	cfg.LLMTimeoutSeconds = getEnvInt("LLM_TIMEOUT_SECONDS", orDefaultInt(file.LLMTimeoutSeconds, 120))
	cfg.TuneFlushIntervalMs = getEnvInt("TUNE_FLUSH_INTERVAL_MS", orDefaultInt(file.TuneFlushIntervalMs, 100))
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", file.RateLimitRPS)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", orDefaultInt(file.RateLimitBurst, 40))
	cfg.LLMTimeout = time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	cfg.TuneFlushInterval = time.Duration(cfg.TuneFlushIntervalMs) * time.Millisecond

	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"store_driver": cfg.StoreDriver})
	}

	return cfg
}

// LoadFile parses a YAML config file. Missing keys stay zero and fall back to defaults in Load.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		telemetry.Warn("config.invalid_float", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func orDefault(val, def string) string {
	if strings.TrimSpace(val) != "" {
		return val
	}
	return def
}

func orDefaultInt(val, def int) int {
	if val > 0 {
		return val
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeStoreDriver(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "memory", "mem":
		return "memory"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "sqlite"
	}
}

func normalizePeerTransport(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "websocket", "ws":
		return "websocket"
	case "redis":
		return "redis"
	default:
		return "memory"
	}
}
