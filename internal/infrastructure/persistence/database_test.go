package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDatabase creates a Database backed by sqlmock. Pings are monitored so
// the automatic ping issued by gorm.Open is expected up front.
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	db, err := Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)

	return db, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()

		assert.NoError(t, db.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure is reported", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		assert.Error(t, db.Ping(context.Background()))
	})
}

func TestDatabase_SQL(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	sqlDB, err := db.SQL()
	require.NoError(t, err)
	assert.Same(t, mockDB, sqlDB)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, config.DatabaseConfig{
		Host: "127.0.0.1", Port: 1, User: "escrow", DBName: "escrow", SSLMode: "disable",
		MaxOpenConns: 1,
	}, WithGormLogger(logger.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Do(t *testing.T) {
	type ledgerNote struct {
		ID   uint
		Note string
	}

	t.Run("commits and exposes the transaction through ctx", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO "ledger_notes"`).
			WithArgs("deposit").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		err := db.Do(context.Background(), func(ctx context.Context) error {
			return db.Conn(ctx).Create(&ledgerNote{Note: "deposit"}).Error
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Do(context.Background(), func(ctx context.Context) error {
			return assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("undo steps run in reverse when the outer transaction fails", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		var undone []string
		err := db.Do(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = append(undone, "account") })
			return db.Do(ctx, func(ctx context.Context) error {
				OnRollback(ctx, func() { undone = append(undone, "agreement") })
				return assert.AnError
			})
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, []string{"agreement", "account"}, undone)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("undo steps are dropped on commit", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		undone := false
		err := db.Do(context.Background(), func(ctx context.Context) error {
			OnRollback(ctx, func() { undone = true })
			return nil
		})

		require.NoError(t, err)
		assert.False(t, undone)
		OnRollback(context.Background(), func() { undone = true })
		assert.False(t, undone, "no transaction, nothing to undo")
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		var outer, inner *gorm.DB
		err := db.Do(context.Background(), func(ctx context.Context) error {
			outer = db.Conn(ctx)
			return db.Do(ctx, func(ctx context.Context) error {
				inner = db.Conn(ctx)
				return nil
			})
		})

		require.NoError(t, err)
		assert.Same(t, outer, inner)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conn without transaction is a plain session", func(t *testing.T) {
		db, _, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		assert.NotNil(t, db.Conn(context.Background()))
	})
}
