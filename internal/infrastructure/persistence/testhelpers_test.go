package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// setupTestDatabase opens an in-memory sqlite database with the escrow schema.
// A single connection keeps every session on the same in-memory database.
func setupTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.SQL()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.DB.AutoMigrate(
		&models.AgreementModel{},
		&models.PartyModel{},
		&models.MilestoneModel{},
		&models.EscrowAccountModel{},
		&models.EscrowTransactionModel{},
		&models.OutboxEntryModel{},
	))
	return db
}

// recordingSaver captures events handed to the outbox
type recordingSaver struct {
	events []shared.DomainEvent
	err    error
}

func (s *recordingSaver) SaveEvents(_ context.Context, _ any, events ...shared.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSaver) types() []string {
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}
