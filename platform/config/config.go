// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AuthServiceConfig provides settings needed by the auth service.
type AuthServiceConfig interface {
	JWTConfig
	GetJWTRefreshSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetAPIVersion() string
	GetEnv() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetMaxBodyBytes() int64
}

// RateLimitConfig provides settings for the /api rate limiter.
type RateLimitConfig interface {
	GetRateLimitWindow() time.Duration
	GetRateLimitMax() int
}

// RealtimeConfig provides settings passed through to the websocket transport.
type RealtimeConfig interface {
	GetRealtimeAllowAll() bool
	GetRealtimeOrigins() []string
	GetPingInterval() time.Duration
	GetPongWait() time.Duration
	GetWriteWait() time.Duration
	GetSendBuffer() int
	GetMaxMessageBytes() int64
}

// RedisConfig provides settings for the Redis backed realtime relay.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetRelayChannel() string
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	APIVersion       string
	DatabaseURL      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	MaxBodyBytes     int64
	RateLimitWindow  time.Duration
	RateLimitMax     int
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
	RedisURL         string
	RedisTLSInsecure bool
	RelayChannel     string
	AsynqQueueName   string
	AsynqConcurrency int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// AuthServiceConfig implementation
func (c *Config) GetJWTRefreshSecret() string       { return c.JWTRefreshSecret }
func (c *Config) GetAccessTokenTTL() time.Duration  { return c.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration { return c.RefreshTokenTTL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetAPIVersion() string    { return c.APIVersion }
func (c *Config) GetEnv() string           { return c.Env }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }
func (c *Config) GetMaxBodyBytes() int64   { return c.MaxBodyBytes }

// RateLimitConfig implementation
func (c *Config) GetRateLimitWindow() time.Duration { return c.RateLimitWindow }
func (c *Config) GetRateLimitMax() int              { return c.RateLimitMax }

// RealtimeConfig implementation. The socket layer shares the CORS origin list.
func (c *Config) GetRealtimeAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetRealtimeOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetPingInterval() time.Duration { return c.PingInterval }
func (c *Config) GetPongWait() time.Duration     { return c.PongWait }
func (c *Config) GetWriteWait() time.Duration    { return c.WriteWait }
func (c *Config) GetSendBuffer() int             { return c.SendBuffer }
func (c *Config) GetMaxMessageBytes() int64      { return c.MaxMessageBytes }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetRelayChannel() string   { return c.RelayChannel }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// IsRedisEnabled reports whether a Redis URL was configured.
func (c *Config) IsRedisEnabled() bool { return c.RedisURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	origins := splitCSV(getEnv("ALLOWED_ORIGINS", "*"))
	allowAll := len(origins) == 0 || containsWildcard(origins)

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":5000"),
		APIVersion:       getEnv("API_VERSION", "v1"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		JWTAccessSecret:  getEnv("JWT_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:   mustDuration(getEnv("JWT_EXPIRE", "7d")),
		RefreshTokenTTL:  mustDuration(getEnv("JWT_REFRESH_EXPIRE", "30d")),
		CORSAllowAll:     allowAll,
		CORSOrigins:      origins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		MaxBodyBytes:     mustInt64(getEnv("MAX_BODY_BYTES", "10485760")),
		RateLimitWindow:  mustDuration(getEnv("RATE_LIMIT_WINDOW", "15m")),
		RateLimitMax:     int(mustInt64(getEnv("RATE_LIMIT_MAX", "100"))),
		PingInterval:     mustDuration(getEnv("SOCKET_PING_INTERVAL", "25s")),
		PongWait:         mustDuration(getEnv("SOCKET_PING_TIMEOUT", "60s")),
		WriteWait:        mustDuration(getEnv("SOCKET_WRITE_WAIT", "10s")),
		SendBuffer:       int(mustInt64(getEnv("SOCKET_SEND_BUFFER", "64"))),
		MaxMessageBytes:  mustInt64(getEnv("SOCKET_MAX_MESSAGE_BYTES", "65536")),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		RelayChannel:     getEnv("REALTIME_RELAY_CHANNEL", "realtime:broadcast"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "realtime"),
		AsynqConcurrency: int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
	}

	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET are required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when ALLOWED_ORIGINS contains *")
	}
	if cfg.PingInterval <= 0 || cfg.PongWait <= cfg.PingInterval {
		return nil, fmt.Errorf("SOCKET_PING_TIMEOUT must be greater than SOCKET_PING_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// mustDuration parses Go durations and the "<n>d" day suffix used by JWT expiry settings.
func mustDuration(value string) time.Duration {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0
		}
		return time.Duration(n) * 24 * time.Hour
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
