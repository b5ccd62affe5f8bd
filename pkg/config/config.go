/*
2019 © Postgres.ai
*/

// Package config provides the App configuration.
package config

import (
	"time"
)

// Supported statement transports.
const (
	TransportHTTP     = "http"
	TransportPostgres = "postgres"
)

// Supported verification code stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config defines an App configuration.
type Config struct {
	App          App          `yaml:"app"`
	SQL          SQL          `yaml:"sql"`
	Health       Health       `yaml:"health"`
	Mail         Mail         `yaml:"mail"`
	Verification Verification `yaml:"verification"`
	Redis        Redis        `yaml:"redis"`
}

// App defines a general application configuration.
type App struct {
	Version        string
	Host           string    `yaml:"host" env:"CHEGAR_APP_HOST"`
	Port           uint      `yaml:"port" env:"PORT" env-default:"8888"`
	Debug          bool      `yaml:"debug" env:"CHEGAR_APP_DEBUG"`
	AllowedOrigins []string  `yaml:"allowedOrigins" env:"CHEGAR_ALLOWED_ORIGINS" env-separator:"," env-default:"https://chegar-primeiro.netlify.app,http://localhost:8888"`
	TrustedProxies []string  `yaml:"trustedProxies" env:"CHEGAR_TRUSTED_PROXIES" env-separator:","`
	RateLimit      RateLimit `yaml:"rateLimit"`
}

// RateLimit describes the per-client token bucket of the HTTP API.
type RateLimit struct {
	Enabled bool    `yaml:"enabled" env:"CHEGAR_RATE_ENABLED" env-default:"true"`
	RPS     float64 `yaml:"rps" env:"CHEGAR_RATE_RPS" env-default:"10"`
	Burst   int     `yaml:"burst" env:"CHEGAR_RATE_BURST" env-default:"20"`
}

// SQL describes how statements reach the database.
type SQL struct {
	Transport             string        `yaml:"transport" env:"CHEGAR_SQL_TRANSPORT" env-default:"http"`
	EndpointURL           string        `yaml:"endpointURL" env:"NEON_API_URL"`
	DSN                   string        `yaml:"dsn" env:"DATABASE_URL"`
	MaxConns              int32         `yaml:"maxConns" env:"CHEGAR_SQL_MAX_CONNS" env-default:"20"`
	Timeout               time.Duration `yaml:"timeout" env:"CHEGAR_SQL_TIMEOUT" env-default:"30s"`
	MaxAttempts           uint          `yaml:"maxAttempts" env:"CHEGAR_SQL_MAX_ATTEMPTS" env-default:"4"`
	RetryDelay            time.Duration `yaml:"retryDelay" env:"CHEGAR_SQL_RETRY_DELAY" env-default:"1s"`
	MaxConcurrentRequests int           `yaml:"maxConcurrentRequests" env:"CHEGAR_SQL_MAX_CONCURRENT" env-default:"10"`
}

// Health describes the periodic database health check.
type Health struct {
	Interval     time.Duration `yaml:"interval" env:"CHEGAR_HEALTH_CHECK_INTERVAL" env-default:"60s"`
	SlackWebhook string        `yaml:"slackWebhook" env:"CHEGAR_HEALTH_SLACK_WEBHOOK"`
}

// Mail describes the SMTP account used for notifications.
type Mail struct {
	Host      string `yaml:"host" env:"EMAIL_HOST" env-default:"smtp.gmail.com"`
	Port      uint   `yaml:"port" env:"EMAIL_PORT" env-default:"587"`
	User      string `yaml:"user" env:"EMAIL_USER"`
	Password  string `yaml:"password" env:"EMAIL_PASS"`
	From      string `yaml:"from" env:"EMAIL_FROM"`
	QueueSize int    `yaml:"queueSize" env:"EMAIL_QUEUE_SIZE" env-default:"100"`
}

// Enabled reports whether SMTP credentials are configured.
func (m Mail) Enabled() bool {
	return m.User != "" && m.Password != ""
}

// Verification describes the storage of verification codes.
type Verification struct {
	Store string        `yaml:"store" env:"CHEGAR_CODE_STORE" env-default:"memory"`
	TTL   time.Duration `yaml:"ttl" env:"CHEGAR_CODE_TTL" env-default:"5m"`
}

// Redis describes a Redis connection.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"chegar:codes"`
}
