// Package postgres implements the destination connector over a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"erpsync/internal/domain"
)

// Config holds the destination connection parameters.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	PoolSize int
}

// Validate checks the parameters required to build a connection string.
func (c Config) Validate() error {
	if c.Host == "" {
		return domain.ErrValidation("destination host is required (DEST_HOST)")
	}
	if c.Database == "" {
		return domain.ErrValidation("destination database is required (DEST_DATABASE)")
	}
	if c.PoolSize < 0 {
		return domain.ErrValidation("destination pool size must be positive")
	}
	return nil
}

// ConnString builds a postgres:// URL.
func (c Config) ConnString() string {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u := &url.URL{
		Scheme:   "postgres",
		Host:     c.Host,
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	if c.Port > 0 {
		u.Host = c.Host + ":" + strconv.Itoa(c.Port)
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Connector is the destination connector backed by a connection pool.
type Connector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open creates the pool. Connections are established on first use; an
// unreachable server surfaces as ConnectionError from the first call.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, domain.ErrValidation("invalid destination connection parameters: %v", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(min(cfg.PoolSize, 1<<15)) //nolint:gosec // clamped
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, domain.ErrDestinationConnection(err)
	}

	logger = logger.With("component", "destination")
	logger.Debug("destination pool created", "host", cfg.Host, "database", cfg.Database, "max_conns", poolCfg.MaxConns)
	return &Connector{pool: pool, logger: logger}, nil
}

// Exec runs a statement that returns no rows.
func (c *Connector) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.pool.Exec(ctx, sql, args...)
	return classify(err)
}

// Query runs a query and returns all rows.
func (c *Connector) Query(ctx context.Context, sql string, args ...any) ([]domain.Record, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	return collect(rows)
}

// Begin opens a transaction.
func (c *Connector) Begin(ctx context.Context) (domain.DestinationTx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: tx}, nil
}

// Ping checks that a pooled connection can reach the server.
func (c *Connector) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return domain.ErrDestinationConnection(err)
	}
	return nil
}

// Close closes the pool.
func (c *Connector) Close() {
	c.pool.Close()
}

// Tx wraps a pgx transaction. Begin on a Tx creates a savepoint.
type Tx struct {
	tx pgx.Tx
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := t.tx.Exec(ctx, sql, args...)
	return classify(err)
}

// Begin opens a nested transaction (SAVEPOINT).
func (t *Tx) Begin(ctx context.Context) (domain.DestinationTx, error) {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &Tx{tx: nested}, nil
}

// Commit commits the transaction or releases the savepoint.
func (t *Tx) Commit(ctx context.Context) error {
	return classify(t.tx.Commit(ctx))
}

// Rollback rolls back the transaction or to the savepoint. Rolling back an
// already closed transaction is not an error.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return classify(err)
}

func collect(rows pgx.Rows) ([]domain.Record, error) {
	defer rows.Close()
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out []domain.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, domain.Record{Columns: cols, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// classify turns connection-level failures into ConnectionError and keeps
// server-reported errors (constraint violations, bad values) as they are.
// Class 08 and the 57P01-57P03 shutdown codes end the session, so they count
// as connection failures even though the server reported them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if connectionLost(pgErr.Code) {
			return domain.ErrDestinationConnection(err)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return domain.ErrDestinationConnection(err)
	}
	return err
}

func connectionLost(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"):
		return true
	case code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}

var (
	_ domain.DestinationConnector = (*Connector)(nil)
	_ domain.DestinationTx        = (*Tx)(nil)
)
