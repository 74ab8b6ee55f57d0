package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "certverify/pkg/platform/strings"
)

// Server captures the configuration of the verification API.
type Server struct {
	Addr           string
	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AdminToken     string
	LogLevel       string
	RequestTimeout time.Duration

	ChainsFile         string
	EtherscanAPIKey    string
	ExplorerMinAnswers int
	HTTPTimeout        time.Duration
	CacheTTL           time.Duration
	BatchConcurrency   int

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
}

// AuthEnabled reports whether API calls require a bearer token.
func (s Server) AuthEnabled() bool {
	return s.JWTSigningKey != ""
}

// RedisConfig configures the shared fetch cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures verification event publishing. Empty Brokers keeps
// events in memory.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Acks    string
}

// RateLimitConfig bounds API calls per caller. Zero Requests disables it.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Defaults.
const (
	DefaultAddr             = ":8080"
	DefaultHTTPTimeout      = 10 * time.Second
	DefaultRequestTimeout   = 60 * time.Second
	DefaultCacheTTL         = 10 * time.Minute
	DefaultBatchConcurrency = 4
	DefaultExplorerAnswers  = 1
	DefaultKafkaTopic       = "certverify.verifications"
	DefaultRateLimit        = 60
	DefaultRateLimitWindow  = time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(getenv func(string) string) (Server, error) {
	e := env{get: getenv}
	cfg := Server{
		Addr:          e.str("CERTVERIFY_ADDR", DefaultAddr),
		JWTSigningKey: getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     e.str("JWT_ISSUER", "certverify"),
		JWTAudience:   e.str("JWT_AUDIENCE", "certverify-api"),
		AdminToken:    getenv("ADMIN_API_TOKEN"),
		LogLevel:      e.str("LOG_LEVEL", "info"),

		ChainsFile:      getenv("CHAINS_FILE"),
		EtherscanAPIKey: getenv("ETHERSCAN_API_KEY"),
		DatabaseURL:     getenv("DATABASE_URL"),

		Redis: RedisConfig{URL: getenv("REDIS_URL")},
		Kafka: KafkaConfig{
			Brokers: platformstrings.SplitList(getenv("KAFKA_BROKERS")),
			Topic:   e.str("KAFKA_TOPIC", DefaultKafkaTopic),
			Acks:    e.str("KAFKA_ACKS", "all"),
		},
	}

	cfg.RequestTimeout = e.duration("REQUEST_TIMEOUT", DefaultRequestTimeout)
	cfg.HTTPTimeout = e.duration("HTTP_TIMEOUT", DefaultHTTPTimeout)
	cfg.CacheTTL = e.duration("CACHE_TTL", DefaultCacheTTL)
	cfg.BatchConcurrency = e.int("BATCH_CONCURRENCY", DefaultBatchConcurrency)
	cfg.ExplorerMinAnswers = e.int("EXPLORER_MIN_ANSWERS", DefaultExplorerAnswers)

	cfg.RateLimit.Requests = e.int("RATE_LIMIT_REQUESTS", DefaultRateLimit)
	cfg.RateLimit.Window = e.duration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow)

	cfg.Redis.PoolSize = e.int("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = e.int("REDIS_MIN_IDLE_CONNS", 2)
	cfg.Redis.DialTimeout = e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = e.duration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second)

	if e.err != nil {
		return Server{}, e.err
	}
	if cfg.BatchConcurrency < 1 {
		return Server{}, fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", cfg.BatchConcurrency)
	}
	if cfg.ExplorerMinAnswers < 1 {
		return Server{}, fmt.Errorf("EXPLORER_MIN_ANSWERS must be at least 1, got %d", cfg.ExplorerMinAnswers)
	}
	return cfg, nil
}

// env reads typed values and keeps the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d
}

func (e *env) int(key string, def int) int {
	raw := strings.TrimSpace(e.get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n
}
