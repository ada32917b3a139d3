// Package mssql implements the source connector for the legacy ERP database
// (SQL Server dialect) on top of database/sql and go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"erpsync/internal/domain"
)

// Config holds the source connection parameters.
type Config struct {
	Host           string
	Port           int
	Instance       string
	Database       string
	User           string
	Password       string
	Encrypt        string // "disable", "false", "true"
	ConnectRetries int
	RetryBase      time.Duration
}

// Validate checks the parameters required to build a DSN.
func (c Config) Validate() error {
	if c.Host == "" {
		return domain.ErrValidation("source host is required (SOURCE_HOST)")
	}
	if c.Database == "" {
		return domain.ErrValidation("source database is required (SOURCE_DATABASE)")
	}
	return nil
}

// DSN builds a sqlserver:// URL as accepted by go-mssqldb.
func (c Config) DSN() string {
	q := url.Values{}
	q.Set("database", c.Database)
	if c.Encrypt != "" {
		q.Set("encrypt", c.Encrypt)
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     c.Host,
		RawQuery: q.Encode(),
	}
	if c.Port > 0 {
		u.Host = c.Host + ":" + strconv.Itoa(c.Port)
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if c.Instance != "" {
		u.Path = c.Instance
	}
	return u.String()
}

// Connector is the source connector. It holds a single session that is
// opened on first use and kept until Close.
type Connector struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// New returns a connector. No connection is made until the first query.
func New(cfg Config, logger *slog.Logger) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Connector{cfg: cfg, logger: logger.With("component", "source")}, nil
}

func (c *Connector) conn(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	db, err := sql.Open("sqlserver", c.cfg.DSN())
	if err != nil {
		return nil, domain.ErrSourceConnection(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(max(c.cfg.ConnectRetries, 0)), retry.NewExponential(c.cfg.RetryBase)) //nolint:gosec // clamped to >= 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			c.logger.Warn("source ping failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, domain.ErrSourceConnection(err)
	}

	c.logger.Info("source connected", "host", c.cfg.Host, "database", c.cfg.Database)
	c.db = db
	return db, nil
}

// Ping establishes the session if needed and checks it is alive.
func (c *Connector) Ping(ctx context.Context) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return domain.ErrSourceConnection(err)
	}
	return nil
}

// Query runs a parameterized query and returns every row. Arguments bind to
// @p1, @p2, ... in order.
func (c *Connector) Query(ctx context.Context, query string, args ...any) ([]domain.Record, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	cols := make([]string, len(types))
	for i, t := range types {
		cols[i] = t.Name()
	}

	var out []domain.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out)+1, err)
		}
		for i, t := range types {
			vals[i] = normalizeValue(t.DatabaseTypeName(), vals[i])
		}
		out = append(out, domain.Record{Columns: cols, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// QuoteIdentifier quotes a SQL Server identifier with brackets.
func (c *Connector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Close releases the session, if one was opened.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// normalizeValue converts driver values whose Go representation is not
// useful downstream. Decimals arrive as digit strings in []byte and
// uniqueidentifiers as 16 bytes in SQL Server's mixed-endian layout.
func normalizeValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch strings.ToUpper(dbType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return string(b)
	case "UNIQUEIDENTIFIER":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return v
		}
		return uuid.UUID(u)
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return string(b)
	}
	return v
}

var _ domain.SourceConnector = (*Connector)(nil)
