// Package config loads escopt settings from an optional YAML file, an
// optional .env file and ESCOPT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"esco-optimizer/db/clickhouse"
	"esco-optimizer/decision/filter"
	"esco-optimizer/pkg/platform"
	"esco-optimizer/source/cache"
	"esco-optimizer/source/ptc"
	"esco-optimizer/source/s3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ESCOPT_"

// Source kinds
const (
	SourcePTC        = "ptc"
	SourceFile       = "file"
	SourceS3         = "s3"
	SourceClickHouse = "clickhouse"
	SourcePostgres   = "postgres"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Source  SourceConfig   `yaml:"source"`
	Cache   CacheConfig    `yaml:"cache"`
	Server  ServerConfig   `yaml:"server"`
	Scoring ScoringConfig  `yaml:"scoring"`
	Policy  PolicyConfig   `yaml:"policy"`
	Log     LogConfig      `yaml:"log"`
	Segment filter.Segment `yaml:"segment"`
}

type SourceConfig struct {
	Kind       string            `yaml:"kind"`
	PTC        ptc.Config        `yaml:"ptc"`
	File       FileConfig        `yaml:"file"`
	S3         s3.Config         `yaml:"s3"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Postgres   PostgresConfig    `yaml:"postgres"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ScoringConfig struct {
	TopK        int `yaml:"top_k"`
	Parallelism int `yaml:"parallelism"`
}

type PolicyConfig struct {
	Dir            string  `yaml:"dir"`
	MaxMonthlyCost float64 `yaml:"max_monthly_cost"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:       SourcePTC,
			PTC:        ptc.DefaultConfig(),
			S3:         s3.DefaultConfig(),
			ClickHouse: *clickhouse.DefaultConfig(),
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     cache.DefaultTTL,
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Scoring: ScoringConfig{TopK: 5},
		Log:     LogConfig{Level: "info", Console: true},
		Segment: filter.ElectricResidential,
	}
}

// Load builds the configuration. path may be empty, in which case
// ESCOPT_CONFIG is consulted; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func env(key string) string { return EnvPrefix + key }

func (c *Config) applyEnv() {
	c.Source.Kind = platform.GetEnv(env("SOURCE"), c.Source.Kind)
	c.Source.PTC.BaseURL = platform.GetEnv(env("PTC_BASE_URL"), c.Source.PTC.BaseURL)
	c.Source.PTC.Timeout = platform.GetEnvDuration(env("PTC_TIMEOUT"), c.Source.PTC.Timeout)
	c.Source.PTC.Retries = platform.GetEnvInt(env("PTC_RETRIES"), c.Source.PTC.Retries)
	c.Source.File.Path = platform.GetEnv(env("FILE_PATH"), c.Source.File.Path)
	c.Source.S3.Bucket = platform.GetEnv(env("S3_BUCKET"), c.Source.S3.Bucket)
	c.Source.S3.Prefix = platform.GetEnv(env("S3_PREFIX"), c.Source.S3.Prefix)
	c.Source.S3.Region = platform.GetEnv(env("S3_REGION"), c.Source.S3.Region)
	c.Source.S3.Endpoint = platform.GetEnv(env("S3_ENDPOINT"), c.Source.S3.Endpoint)
	c.Source.ClickHouse.Host = platform.GetEnv(env("CLICKHOUSE_HOST"), c.Source.ClickHouse.Host)
	c.Source.ClickHouse.Port = platform.GetEnvInt(env("CLICKHOUSE_PORT"), c.Source.ClickHouse.Port)
	c.Source.ClickHouse.Database = platform.GetEnv(env("CLICKHOUSE_DATABASE"), c.Source.ClickHouse.Database)
	c.Source.ClickHouse.Username = platform.GetEnv(env("CLICKHOUSE_USER"), c.Source.ClickHouse.Username)
	c.Source.ClickHouse.Password = platform.GetEnv(env("CLICKHOUSE_PASSWORD"), c.Source.ClickHouse.Password)
	c.Source.Postgres.DSN = platform.GetEnv(env("POSTGRES_DSN"), c.Source.Postgres.DSN)

	c.Cache.Enabled = platform.GetEnvBool(env("CACHE_ENABLED"), c.Cache.Enabled)
	c.Cache.Backend = platform.GetEnv(env("CACHE_BACKEND"), c.Cache.Backend)
	c.Cache.RedisAddr = platform.GetEnv(env("REDIS_ADDR"), c.Cache.RedisAddr)
	c.Cache.RedisPassword = platform.GetEnv(env("REDIS_PASSWORD"), c.Cache.RedisPassword)
	c.Cache.RedisDB = platform.GetEnvInt(env("REDIS_DB"), c.Cache.RedisDB)
	c.Cache.TTL = platform.GetEnvDuration(env("CACHE_TTL"), c.Cache.TTL)

	c.Server.Port = platform.GetEnvInt(env("PORT"), c.Server.Port)
	c.Server.APIKey = platform.GetEnv(env("API_KEY"), c.Server.APIKey)
	if origins := platform.GetEnv(env("CORS_ORIGINS"), ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Scoring.TopK = platform.GetEnvInt(env("TOP_K"), c.Scoring.TopK)
	c.Scoring.Parallelism = platform.GetEnvInt(env("PARALLELISM"), c.Scoring.Parallelism)

	c.Policy.Dir = platform.GetEnv(env("POLICY_DIR"), c.Policy.Dir)
	c.Policy.MaxMonthlyCost = platform.GetEnvFloat(env("MAX_MONTHLY_COST"), c.Policy.MaxMonthlyCost)

	c.Log.Level = platform.GetEnv(env("LOG_LEVEL"), c.Log.Level)
	c.Log.Console = platform.GetEnvBool(env("LOG_CONSOLE"), c.Log.Console)

	c.Segment = filter.NewSegment(
		platform.GetEnv(env("COMMODITY"), string(c.Segment.Commodity)),
		platform.GetEnv(env("SERVICE_CLASS"), string(c.Segment.ServiceClass)),
	)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source.Kind {
	case SourcePTC, SourceClickHouse:
	case SourceFile:
		if c.Source.File.Path == "" {
			errs = append(errs, errors.New("source.file.path is required for the file source"))
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			errs = append(errs, errors.New("source.s3.bucket is required for the s3 source"))
		}
	case SourcePostgres:
		if c.Source.Postgres.DSN == "" {
			errs = append(errs, errors.New("source.postgres.dsn is required for the postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source kind %q", c.Source.Kind))
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheMemory:
		case CacheRedis:
			if c.Cache.RedisAddr == "" {
				errs = append(errs, errors.New("cache.redis_addr is required for the redis cache"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
		}
	}

	if c.Segment.Commodity == "" || c.Segment.ServiceClass == "" {
		errs = append(errs, errors.New("segment.commodity and segment.service_class are required"))
	}
	if c.Scoring.TopK <= 0 {
		errs = append(errs, fmt.Errorf("scoring.top_k must be positive, got %d", c.Scoring.TopK))
	}
	if c.Scoring.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("scoring.parallelism must not be negative, got %d", c.Scoring.Parallelism))
	}
	if c.Policy.MaxMonthlyCost < 0 {
		errs = append(errs, errors.New("policy.max_monthly_cost must not be negative"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
