// Package tx holds the transaction boundaries the domain layer programs
// against. The Postgres implementation lives under
// internal/infrastructure/storage/postgres.
package tx

import "context"

// Manager runs a function inside a database transaction. The transaction
// commits when fn returns nil and rolls back otherwise. A nested call joins
// the transaction already stored in the context instead of opening a new one.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds a read-only variant for query paths. Writes inside
// ReadOnly fail at the database.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
