package shared

import "context"

// UnitOfWork runs a function inside one persistence transaction.
//
// Repositories invoked with the ctx passed to fn join that transaction, so
// several aggregates saved inside fn commit or roll back together. Returning
// an error from fn rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitOfWorkFunc adapts a plain function to the UnitOfWork interface
type UnitOfWorkFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// Do implements UnitOfWork
func (f UnitOfWorkFunc) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// NoopUnitOfWork runs fn directly without a transaction. Useful for tests
// with in-memory repositories.
var NoopUnitOfWork UnitOfWork = UnitOfWorkFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
