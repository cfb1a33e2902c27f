package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr        string
	Environment string // "production" turns on secure cookies
	// RateLimitDisabled bypasses the middleware entirely (testing/demo).
	RateLimitDisabled bool
	JWTSigningKey     string
	Redis             RedisConfig
	// DatabaseURL is the billing database. Empty means no subscription
	// lookups: signed-in callers never resolve above registered.
	DatabaseURL string
	// KafkaBrokers enables the violations audit publisher when non-empty.
	KafkaBrokers []string
}

// RedisConfig holds counter store connection settings. An empty URL means
// Redis is unconfigured and the engine runs in bypass mode.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IsProduction reports whether the process runs with production hardening.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("QUOTAGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("QUOTAGATE_ENV")
	if env == "" {
		env = "development"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Dev default, must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:              addr,
		Environment:       env,
		RateLimitDisabled: os.Getenv("RATELIMIT_DISABLED") == "true",
		JWTSigningKey:     jwtSigningKey,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: brokers,
	}
}
