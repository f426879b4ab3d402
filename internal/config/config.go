package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	BaseURL                    string `yaml:"baseURL"`
	LogLevel                   string `yaml:"logLevel"`
	LogFormat                  string `yaml:"logFormat"`
	RequestTimeoutSeconds      int    `yaml:"requestTimeoutSeconds"`
	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	QueueStream                string `yaml:"queueStream"`
	QueueGroup                 string `yaml:"queueGroup"`
	QueueConcurrency           int    `yaml:"queueConcurrency"`
	QueueMaxRetries            int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds     int    `yaml:"queueRetryDelaySeconds"`
	RateLimitPerWindow         int    `yaml:"rateLimitPerWindow"`
	RateLimitWindowSeconds     int    `yaml:"rateLimitWindowSeconds"`
	ChunkSize                  int    `yaml:"chunkSize"`
	ChunkOverlap               int    `yaml:"chunkOverlap"`
	ObjectStoreEndpoint        string `yaml:"objectStoreEndpoint"`
	ObjectStoreAccessKey       string `yaml:"objectStoreAccessKey"`
	ObjectStoreSecretKey       string `yaml:"objectStoreSecretKey"`
	ObjectStoreBucket          string `yaml:"objectStoreBucket"`
	ObjectStoreUseSSL          bool   `yaml:"objectStoreUseSSL"`
	ServiceTokenPrivateKeyPath string `yaml:"serviceTokenPrivateKeyPath"`
	ServiceTokenKeyID          string `yaml:"serviceTokenKeyId"`
	ServiceTokenIssuer         string `yaml:"serviceTokenIssuer"`
	ServiceTokenAudience       string `yaml:"serviceTokenAudience"`
}

// Load reads config from path (defaults to config.yaml). A .env file next to
// the config, when present, is loaded before environment overrides apply.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// godotenv never overrides variables already set in the environment.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.BaseURL, "MARKOV_BASE_URL")
	setString(&cfg.LogLevel, "MARKOV_LOG_LEVEL")
	setString(&cfg.LogFormat, "MARKOV_LOG_FORMAT")
	setInt(&cfg.RequestTimeoutSeconds, "MARKOV_REQUEST_TIMEOUT_SECONDS")
	setString(&cfg.RedisAddr, "MARKOV_REDIS_ADDR")
	setString(&cfg.RedisPassword, "MARKOV_REDIS_PASSWORD")
	setString(&cfg.QueueStream, "MARKOV_QUEUE_STREAM")
	setString(&cfg.QueueGroup, "MARKOV_QUEUE_GROUP")
	setInt(&cfg.QueueConcurrency, "MARKOV_QUEUE_CONCURRENCY")
	setInt(&cfg.QueueMaxRetries, "MARKOV_QUEUE_MAX_RETRIES")
	setInt(&cfg.QueueRetryDelaySeconds, "MARKOV_QUEUE_RETRY_DELAY_SECONDS")
	setInt(&cfg.RateLimitPerWindow, "MARKOV_RATE_LIMIT_PER_WINDOW")
	setInt(&cfg.RateLimitWindowSeconds, "MARKOV_RATE_LIMIT_WINDOW_SECONDS")
	setInt(&cfg.ChunkSize, "MARKOV_CHUNK_SIZE")
	setInt(&cfg.ChunkOverlap, "MARKOV_CHUNK_OVERLAP")
	setString(&cfg.ObjectStoreEndpoint, "MARKOV_OBJECT_STORE_ENDPOINT")
	setString(&cfg.ObjectStoreAccessKey, "MARKOV_OBJECT_STORE_ACCESS_KEY")
	setString(&cfg.ObjectStoreSecretKey, "MARKOV_OBJECT_STORE_SECRET_KEY")
	setString(&cfg.ObjectStoreBucket, "MARKOV_OBJECT_STORE_BUCKET")
	if v := os.Getenv("MARKOV_OBJECT_STORE_USE_SSL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.ObjectStoreUseSSL = enabled
		}
	}
	setString(&cfg.ServiceTokenPrivateKeyPath, "MARKOV_SERVICE_TOKEN_PRIVATE_KEY_PATH")
	setString(&cfg.ServiceTokenKeyID, "MARKOV_SERVICE_TOKEN_KEY_ID")
	setString(&cfg.ServiceTokenIssuer, "MARKOV_SERVICE_TOKEN_ISSUER")
	setString(&cfg.ServiceTokenAudience, "MARKOV_SERVICE_TOKEN_AUDIENCE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("config: baseURL is required (set in config.yaml or MARKOV_BASE_URL)")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: baseURL %q must be an absolute http(s) URL", cfg.BaseURL)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: logFormat %q must be json or text", cfg.LogFormat)
	}
	if cfg.RequestTimeoutSeconds < 0 {
		return errors.New("config: requestTimeoutSeconds must be >= 0")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or MARKOV_REDIS_ADDR)")
	}
	if cfg.QueueConcurrency < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 {
		return errors.New("config: queue settings must be >= 0")
	}
	if cfg.RateLimitPerWindow < 0 || cfg.RateLimitWindowSeconds < 0 {
		return errors.New("config: rate limit settings must be >= 0")
	}
	if (cfg.RateLimitPerWindow > 0) != (cfg.RateLimitWindowSeconds > 0) {
		return errors.New("config: rateLimitPerWindow and rateLimitWindowSeconds must be set together")
	}
	if cfg.ChunkSize < 0 {
		return errors.New("config: chunkSize must be >= 0 (set in config.yaml or MARKOV_CHUNK_SIZE)")
	}
	if cfg.ChunkOverlap < 0 {
		return errors.New("config: chunkOverlap must be >= 0 (set in config.yaml or MARKOV_CHUNK_OVERLAP)")
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return errors.New("config: chunkOverlap must be smaller than chunkSize")
	}
	if strings.TrimSpace(cfg.ObjectStoreEndpoint) != "" && strings.TrimSpace(cfg.ObjectStoreBucket) == "" {
		return errors.New("config: objectStoreBucket is required when objectStoreEndpoint is set")
	}
	if strings.TrimSpace(cfg.ServiceTokenPrivateKeyPath) != "" {
		if strings.TrimSpace(cfg.ServiceTokenIssuer) == "" || strings.TrimSpace(cfg.ServiceTokenAudience) == "" {
			return errors.New("config: service token signing requires serviceTokenIssuer + serviceTokenAudience")
		}
	}
	return nil
}
