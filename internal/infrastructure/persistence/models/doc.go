// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: AggregateModel shared by aggregate roots
//   - agreement.go: commission agreements with their parties and milestones
//   - escrow.go: escrow accounts and their transaction ledger
//   - outbox.go: outbox pattern model for event delivery
//
// Money is stored as an amount column plus the currency of the owning aggregate.
package models
