package domain

import "context"

// SourceConnector reads from the legacy ERP database.
type SourceConnector interface {
	Query(ctx context.Context, query string, args ...any) ([]Record, error)
	QuoteIdentifier(name string) string
	Ping(ctx context.Context) error
	Close() error
}

// Execer runs statements that return no rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) error
}

// DestinationTx is an open destination transaction. Begin on a transaction
// opens a nested one backed by a savepoint.
type DestinationTx interface {
	Execer
	Begin(ctx context.Context) (DestinationTx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DestinationConnector writes to the destination store.
type DestinationConnector interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) ([]Record, error)
	Begin(ctx context.Context) (DestinationTx, error)
	Ping(ctx context.Context) error
	Close()
}
