package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database instrumentation.
type DBTracingConfig struct {
	Enabled         bool          // register otelgorm spans
	LogFullSQL      bool          // include query variables in spans, dev only
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // default "postgresql"
}

// DefaultDBTracingConfig returns default configuration for database tracing.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin wires otelgorm plus timing callbacks that flag slow
// queries on the active span and feed the query metrics.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
}

// NewDBTracingPlugin creates a database instrumentation plugin. meter may be
// nil, in which case only spans are produced.
func NewDBTracingPlugin(cfg DBTracingConfig, meter metric.Meter, logger *zap.Logger) (*DBTracingPlugin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	p := &DBTracingPlugin{config: cfg, logger: logger}
	if meter == nil {
		return p, nil
	}

	in := NewInstruments(meter)
	p.queryTotal = in.Counter("db_query_total", "Database queries by operation", "{query}")
	p.queryDuration = in.Histogram("db_query_duration_seconds", "Database query latency", "s", DBDurationBuckets...)
	p.slowQueryTotal = in.Counter("db_slow_query_total", "Queries slower than the configured threshold", "{query}")
	if err := in.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// Register installs the plugin on db.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	// Timing callbacks go first so their after hook runs while the otelgorm
	// span is still recording.
	for _, op := range []string{"create", "query", "update", "delete", "row", "raw"} {
		if err := p.registerOperation(db, op); err != nil {
			return err
		}
	}

	if p.config.Enabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
		if !p.config.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	p.logger.Info("Database instrumentation registered",
		zap.Bool("tracing", p.config.Enabled),
		zap.Bool("metrics", p.queryTotal != nil),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

func (p *DBTracingPlugin) registerOperation(db *gorm.DB, op string) error {
	gormName := "gorm:" + op
	before := func(tx *gorm.DB) { p.before(tx) }
	after := func(tx *gorm.DB) { p.after(tx, op) }

	cb := db.Callback()
	switch op {
	case "create":
		if err := cb.Create().Before(gormName).Register("escrow_timing:before_create", before); err != nil {
			return err
		}
		return cb.Create().After(gormName).Register("escrow_timing:after_create", after)
	case "query":
		if err := cb.Query().Before(gormName).Register("escrow_timing:before_query", before); err != nil {
			return err
		}
		return cb.Query().After(gormName).Register("escrow_timing:after_query", after)
	case "update":
		if err := cb.Update().Before(gormName).Register("escrow_timing:before_update", before); err != nil {
			return err
		}
		return cb.Update().After(gormName).Register("escrow_timing:after_update", after)
	case "delete":
		if err := cb.Delete().Before(gormName).Register("escrow_timing:before_delete", before); err != nil {
			return err
		}
		return cb.Delete().After(gormName).Register("escrow_timing:after_delete", after)
	case "row":
		if err := cb.Row().Before(gormName).Register("escrow_timing:before_row", before); err != nil {
			return err
		}
		return cb.Row().After(gormName).Register("escrow_timing:after_row", after)
	default:
		if err := cb.Raw().Before(gormName).Register("escrow_timing:before_raw", before); err != nil {
			return err
		}
		return cb.Raw().After(gormName).Register("escrow_timing:after_raw", after)
	}
}

type contextKey string

const queryStartTimeKey contextKey = "db_query_start_time"

func (p *DBTracingPlugin) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBTracingPlugin) after(db *gorm.DB, op string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	var elapsed time.Duration
	startTime, timed := ctx.Value(queryStartTimeKey).(time.Time)
	if timed {
		elapsed = time.Since(startTime)
	}
	slow := timed && elapsed > p.config.SlowQueryThresh

	if p.queryTotal != nil {
		attrs := []attribute.KeyValue{AttrDBOperation.String(op), AttrDBTable.String(db.Statement.Table)}
		p.queryTotal.Inc(ctx, attrs...)
		if timed {
			p.queryDuration.RecordDuration(ctx, elapsed, attrs...)
		}
		if slow {
			p.slowQueryTotal.Inc(ctx, attrs...)
		}
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
	if slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}

// RegisterPoolMetrics exposes connection pool statistics as observable gauges.
func RegisterPoolMetrics(meter metric.Meter, sqlDB *sql.DB) (metric.Registration, error) {
	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	waitCount, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waitCount, stats.WaitCount)
		return nil
	}, connections, maxOpen, waitCount)
}
