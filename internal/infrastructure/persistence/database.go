package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectTimeout = 10 * time.Second

// Database is the gorm handle shared by the repositories. It is also the
// unit of work: Do binds a transaction to ctx and Conn picks it up.
type Database struct {
	DB *gorm.DB
}

// ConnectOption configures Connect
type ConnectOption func(*gorm.Config)

// WithGormLogger routes gorm output through l
func WithGormLogger(l logger.Interface) ConnectOption {
	return func(c *gorm.Config) { c.Logger = l }
}

// Connect opens the postgres pool described by cfg and waits until the
// server answers.
func Connect(ctx context.Context, cfg config.DatabaseConfig, opts ...ConnectOption) (*Database, error) {
	gcfg := gormConfig(logger.Default.LogMode(logger.Silent))
	for _, opt := range opts {
		opt(gcfg)
	}
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	db := &Database{DB: gdb}

	sqlDB, err := db.SQL()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Open wraps any gorm dialector. Tests use it with sqlite and sqlmock.
func Open(dialector gorm.Dialector, gormLogger logger.Interface) (*Database, error) {
	gdb, err := gorm.Open(dialector, gormConfig(gormLogger))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Database{DB: gdb}, nil
}

// gormConfig stores timestamps in UTC. TranslateError maps driver unique
// violations to gorm.ErrDuplicatedKey.
func gormConfig(l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:                 l,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	}
}

// SQL returns the pool underneath gorm
func (d *Database) SQL() (*sql.DB, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	return sqlDB, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.SQL()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping is the readiness check used by /health
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type txKey struct{}

// txScope is the transaction bound to a ctx and the undo steps registered
// while it was open
type txScope struct {
	db   *gorm.DB
	undo []func()
}

// Do runs fn inside a transaction carried by ctx. Repositories called with
// that ctx join it, and so do nested Do calls. When the outermost transaction
// does not commit, the steps registered with OnRollback run in reverse order.
func (d *Database) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txScope); ok {
		return fn(ctx)
	}
	scope := &txScope{}
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope.db = tx
		return fn(context.WithValue(ctx, txKey{}, scope))
	})
	if err != nil {
		for i := len(scope.undo) - 1; i >= 0; i-- {
			scope.undo[i]()
		}
	}
	return err
}

// OnRollback registers undo against the transaction bound to ctx. Outside a
// transaction it does nothing.
func OnRollback(ctx context.Context, undo func()) {
	if scope, ok := ctx.Value(txKey{}).(*txScope); ok {
		scope.undo = append(scope.undo, undo)
	}
}

// Conn returns the transaction bound to ctx, or a plain session when there is none
func (d *Database) Conn(ctx context.Context) *gorm.DB {
	if scope, ok := ctx.Value(txKey{}).(*txScope); ok {
		return scope.db
	}
	return d.DB.WithContext(ctx)
}

var _ shared.UnitOfWork = (*Database)(nil)
