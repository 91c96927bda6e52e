package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether the production safeguards in validate apply
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // minutes
}

// DSN is the postgres URL with user and password escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig locates the shared idempotency store. An empty Host keeps
// idempotency keys in process.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type JWTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Issuer  string `mapstructure:"issuer"`
}

// EventConfig drives the outbox relay and subscriber deduplication
type EventConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	BatchSize        int           `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
	CleanupEnabled   bool          `mapstructure:"cleanup_enabled"`
	CleanupRetention time.Duration `mapstructure:"cleanup_retention"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`
	// ClaimTimeout is how long an entry may stay claimed before another worker takes it over
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`
	// OperatorIDs may use the /system routes
	OperatorIDs []string `mapstructure:"operator_ids"`
}

// Operators parses OperatorIDs
func (h HTTPConfig) Operators() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(h.OperatorIDs))
	for _, raw := range h.OperatorIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("http.operator_ids: %q is not a UUID", raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type StripeConfig struct {
	SecretKey       string `mapstructure:"secret_key"`
	PublishableKey  string `mapstructure:"publishable_key"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
	ConnectClientID string `mapstructure:"connect_client_id"`
	IsTestMode      bool   `mapstructure:"is_test_mode"`
	// Timeout bounds each Stripe API call
	Timeout time.Duration `mapstructure:"timeout"`
}

// PayoutConfig holds the approval thresholds and the transfer retry budget.
// Ratios stay decimal strings so they are exact.
type PayoutConfig struct {
	AutoApproveRatio string        `mapstructure:"auto_approve_ratio"`
	DisputeRatio     string        `mapstructure:"dispute_ratio"`
	DisputeThreshold string        `mapstructure:"dispute_threshold"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
}

// Ratios parses the approval thresholds
func (p PayoutConfig) Ratios() (autoApprove, dispute, threshold decimal.Decimal, err error) {
	parse := func(key, raw string) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		d, perr := decimal.NewFromString(raw)
		if perr != nil {
			err = fmt.Errorf("payout.%s: %w", key, perr)
		}
		return d
	}
	autoApprove = parse("auto_approve_ratio", p.AutoApproveRatio)
	dispute = parse("dispute_ratio", p.DisputeRatio)
	threshold = parse("dispute_threshold", p.DisputeThreshold)
	return autoApprove, dispute, threshold, err
}

type SchedulerConfig struct {
	OverdueSweepEnabled   bool          `mapstructure:"overdue_sweep_enabled"`
	OverdueSweepInterval  time.Duration `mapstructure:"overdue_sweep_interval"`
	OverdueSweepBatchSize int           `mapstructure:"overdue_sweep_batch_size"`
	OverdueSweepTimeout   time.Duration `mapstructure:"overdue_sweep_timeout"`
}

type TelemetryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"` // OTLP gRPC, host:port
	SamplingRatio     float64 `mapstructure:"sampling_ratio"`
	ServiceName       string  `mapstructure:"service_name"`
	Insecure          bool    `mapstructure:"insecure"`
	DBTraceEnabled    bool    `mapstructure:"db_trace_enabled"`
}
