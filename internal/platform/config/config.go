// Package config builds the explicit, immutable service configuration. Nothing
// here is read after startup; components receive the values they need.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr              = ":8080"
	DefaultTokenTTL          = 15 * time.Minute
	DefaultRegistryTimeout   = 10 * time.Second
	DefaultRecordCacheTTL    = 5 * time.Minute
	DefaultAccessLogLimit    = 100
	MaxAccessLogLimit        = 1000
	DefaultTxTimeout         = 5 * time.Second
	DefaultBreakerThreshold  = 5
	DefaultBreakerCooldown   = 30 * time.Second
	devSigningKey            = "dev-secret-key-change-in-production"
	defaultRegistryAPIURL    = "http://localhost:8001"
	defaultIssuer            = "healthconsent"
	defaultRedisPoolSize     = 10
	defaultRedisDialTimeout  = 5 * time.Second
	defaultRedisReadTimeout  = 3 * time.Second
	defaultRedisWriteTimeout = 3 * time.Second
)

type Config struct {
	Server   Server
	Auth     Auth
	Database Database
	Redis    Redis
	Registry Registry
	Ledger   Ledger
	Consent  Consent
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	Environment    string
	LogLevel       string
	TrustedProxies []string
	// SeedDemoData loads demo consents when running on in-memory stores.
	SeedDemoData bool
}

type Auth struct {
	JWTSigningKey string
	Issuer        string
	TokenTTL      time.Duration
}

type Database struct {
	URL            string
	MigrateOnStart bool
}

type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Registry configures the external patient record source.
type Registry struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	CacheTTL         time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type Ledger struct {
	DefaultLimit int
	MaxLimit     int
}

type Consent struct {
	TxTimeout time.Duration
}

// IsProduction reports whether dev fallbacks must be refused.
func (c Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Load reads an optional .env file, then builds the configuration from the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Server: Server{
			Addr:           envOr("HEALTHCONSENT_ADDR", DefaultAddr),
			Environment:    envOr("ENVIRONMENT", "development"),
			LogLevel:       envOr("LOG_LEVEL", "info"),
			TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
			SeedDemoData:   p.boolean("SEED_DEMO_DATA", false),
		},
		Auth: Auth{
			JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:        envOr("JWT_ISSUER", defaultIssuer),
			TokenTTL:      p.duration("TOKEN_TTL", DefaultTokenTTL),
		},
		Database: Database{
			URL:            os.Getenv("DATABASE_URL"),
			MigrateOnStart: p.boolean("DATABASE_MIGRATE", false),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", defaultRedisPoolSize),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  defaultRedisDialTimeout,
			ReadTimeout:  defaultRedisReadTimeout,
			WriteTimeout: defaultRedisWriteTimeout,
		},
		Registry: Registry{
			BaseURL:          envOr("REGISTRY_API_URL", defaultRegistryAPIURL),
			APIKey:           os.Getenv("REGISTRY_API_KEY"),
			Timeout:          p.duration("REGISTRY_TIMEOUT", DefaultRegistryTimeout),
			CacheTTL:         p.duration("RECORD_CACHE_TTL", DefaultRecordCacheTTL),
			BreakerThreshold: p.integer("REGISTRY_BREAKER_THRESHOLD", DefaultBreakerThreshold),
			BreakerCooldown:  p.duration("REGISTRY_BREAKER_COOLDOWN", DefaultBreakerCooldown),
		},
		Ledger: Ledger{
			DefaultLimit: p.integer("ACCESS_LOG_DEFAULT_LIMIT", DefaultAccessLogLimit),
			MaxLimit:     MaxAccessLogLimit,
		},
		Consent: Consent{
			TxTimeout: p.duration("CONSENT_TX_TIMEOUT", DefaultTxTimeout),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}

	if cfg.Auth.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Config{}, errors.New("JWT_SIGNING_KEY is required in production")
		}
		cfg.Auth.JWTSigningKey = devSigningKey
	}
	if cfg.Ledger.DefaultLimit <= 0 || cfg.Ledger.DefaultLimit > cfg.Ledger.MaxLimit {
		return Config{}, fmt.Errorf("ACCESS_LOG_DEFAULT_LIMIT must be between 1 and %d", cfg.Ledger.MaxLimit)
	}
	if cfg.Registry.Timeout <= 0 {
		return Config{}, errors.New("REGISTRY_TIMEOUT must be positive")
	}
	return cfg, nil
}

// parser keeps the first conversion error so FromEnv reads as a flat list.
type parser struct {
	err error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	if err != nil {
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%s: %w", key, err)
		}
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("%s: %w", key, err)
		}
		return def
	}
	return b
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
