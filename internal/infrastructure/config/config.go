// Package config reads the service configuration from config.toml and
// ESCROW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Event     EventConfig     `mapstructure:"event"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// defaults names every key the service reads. AutomaticEnv only reaches
// keys viper already knows, so secrets are listed too, empty.
var defaults = map[string]any{
	"app.name": "escrow-backend",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "escrow",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,

	"redis.host":     "",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.enabled": false,
	"jwt.secret":  "",
	"jwt.issuer":  "escrow-backend",

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"event.processor_enabled": true,
	"event.batch_size":        100,
	"event.poll_interval":     5 * time.Second,
	"event.max_retries":       5,
	"event.cleanup_enabled":   true,
	"event.cleanup_retention": 7 * 24 * time.Hour,
	"event.idempotency_ttl":   72 * time.Hour,
	"event.claim_timeout":     5 * time.Minute,

	"http.read_timeout":     15 * time.Second,
	"http.write_timeout":    30 * time.Second,
	"http.idle_timeout":     60 * time.Second,
	"http.max_header_bytes": 1 << 20,
	"http.max_body_size":    1 << 20,
	// No wildcard: an empty origin list allows no cross-origin requests.
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID", "X-User-ID", "Idempotency-Key"},
	"http.trusted_proxies":    []string{},
	"http.operator_ids":       []string{},

	"stripe.secret_key":        "",
	"stripe.publishable_key":   "",
	"stripe.webhook_secret":    "",
	"stripe.connect_client_id": "",
	"stripe.is_test_mode":      false,
	"stripe.timeout":           20 * time.Second,

	"payout.auto_approve_ratio": "0.10",
	"payout.dispute_ratio":      "0.50",
	"payout.dispute_threshold":  "0",
	"payout.retry_attempts":     3,
	"payout.retry_base_delay":   200 * time.Millisecond,
	"payout.retry_max_delay":    2 * time.Second,

	"telemetry.enabled":            false,
	"telemetry.collector_endpoint": "localhost:4317",
	"telemetry.sampling_ratio":     1.0,
	"telemetry.service_name":       "escrow-backend",
	"telemetry.insecure":           false,
	"telemetry.db_trace_enabled":   false,

	"scheduler.overdue_sweep_enabled":    true,
	"scheduler.overdue_sweep_interval":   15 * time.Minute,
	"scheduler.overdue_sweep_batch_size": 500,
	"scheduler.overdue_sweep_timeout":    5 * time.Minute,
}

// Load reads config.toml from ., ./config or /etc/escrow, then lets
// ESCROW_<SECTION>_<KEY> variables override it. Missing keys take their defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/escrow")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ESCROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper decodes and validates v. Keys v does not set take their defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
