// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	ReadReplicaURL string `env:"READ_REPLICA_URL"`
	DBMaxConns     int    `env:"DB_MAX_CONNS" envDefault:"20"`

	// Service identity
	ServiceDID   string `env:"FEEDGEN_SERVICE_DID,required,notEmpty"`
	Hostname     string `env:"FEEDGEN_HOSTNAME,required,notEmpty"`
	PublisherDID string `env:"FEEDGEN_PUBLISHER_DID,required,notEmpty"`

	// Auth
	APIKey             string   `env:"RSKY_API_KEY,required,notEmpty"`
	TrustedSigningKeys string   `env:"FEEDGEN_TRUSTED_SIGNING_KEYS"`
	JWTAllowedAlgs     []string `env:"JWT_ALLOWED_ALGS" envDefault:"ES256" envSeparator:","`

	// Rate Limit（req/min）
	RateLimitFeed          float64 `env:"RATE_LIMIT_FEED" envDefault:"600"`
	RateLimitAccountAction float64 `env:"RATE_LIMIT_ACCOUNT_ACTION" envDefault:"5"`

	// Mailer
	MailerAPIURL  string        `env:"MAILER_API_URL"`
	MailerAPIKey  string        `env:"MAILER_API_KEY"`
	MailerFrom    string        `env:"MAILER_FROM" envDefault:"noreply@localhost"`
	MailerTimeout time.Duration `env:"MAILER_TIMEOUT" envDefault:"10s"`

	// Worker
	EmailTokenRetention time.Duration `env:"EMAIL_TOKEN_RETENTION" envDefault:"24h"`
	CleanupInterval     time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Observability
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom は指定されたマップを環境変数の代わりに使用してConfigを読み込む。
// テストや埋め込み用途で使用する。
func LoadFrom(environ map[string]string) (*Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		if missing := missingKeys(err); len(missing) > 0 {
			return nil, fmt.Errorf("required environment variables are not set: %v", missing)
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// リードレプリカ未指定の場合は書き込みDBから読む
	if cfg.ReadReplicaURL == "" {
		cfg.ReadReplicaURL = cfg.DatabaseURL
	}

	cfg.ServiceDID = strings.TrimSpace(cfg.ServiceDID)
	cfg.Hostname = strings.TrimSpace(cfg.Hostname)

	return cfg, nil
}

// missingKeys はenvのエラーから未設定の必須キーを抽出する。
func missingKeys(err error) []string {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return nil
	}

	var missing []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		}
	}
	return missing
}

// ReplicaIsPrimary はリードレプリカが書き込みDBと同一かどうかを返す。
func (c *Config) ReplicaIsPrimary() bool {
	return c.ReadReplicaURL == c.DatabaseURL
}

// ServiceEndpoint はwell-known文書に掲載するサービスエンドポイントを返す。
func (c *Config) ServiceEndpoint() string {
	return "https://" + c.Hostname
}
