package testutil

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
)

const ident = `"((?:[^"]|"")+)"`

var (
	createRe   = regexp.MustCompile(`^CREATE TABLE IF NOT EXISTS ` + ident + `\.` + ident + ` \((.*)\)$`)
	insertRe   = regexp.MustCompile(`^INSERT INTO ` + ident + `\.` + ident + ` \((.*?)\) VALUES \((.*?)\)(?: ON CONFLICT \((.*?)\) DO (NOTHING|UPDATE SET .*))?$`)
	dropRe     = regexp.MustCompile(`^DROP TABLE IF EXISTS ` + ident + `\.` + ident + ` CASCADE$`)
	truncateRe = regexp.MustCompile(`^TRUNCATE TABLE ` + ident + `\.` + ident + ` RESTART IDENTITY CASCADE$`)
	varcharRe  = regexp.MustCompile(`^VARCHAR\((\d+)\)$`)
)

// Statement is one statement executed against FakeDestination.
type Statement struct {
	SQL  string
	Args []any
}

type fakeColumn struct {
	Name string
	Type string
}

type fakeTable struct {
	Columns   []fakeColumn
	Key       []string
	Rows      []map[string]any
	Truncates int
}

func (t *fakeTable) clone() *fakeTable {
	c := &fakeTable{
		Columns:   append([]fakeColumn(nil), t.Columns...),
		Key:       append([]string(nil), t.Key...),
		Truncates: t.Truncates,
	}
	for _, r := range t.Rows {
		row := make(map[string]any, len(r))
		for k, v := range r {
			row[k] = v
		}
		c.Rows = append(c.Rows, row)
	}
	return c
}

func (t *fakeTable) column(name string) (fakeColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return fakeColumn{}, false
}

// FakeDestination implements domain.DestinationConnector in memory. It
// understands the statements built by internal/ddl, enforces VARCHAR(n)
// limits and primary keys, and emulates transactions and savepoints with
// snapshots.
type FakeDestination struct {
	// ExecFn, when set, runs before every Exec; a non-nil error fails the
	// statement without applying it.
	ExecFn func(ctx context.Context, sql string, args []any) error
	// QueryErr fails every Query.
	QueryErr error
	// BeginErr fails every top-level Begin.
	BeginErr error

	mu         sync.Mutex
	tables     map[string]*fakeTable
	Statements []Statement
	Closed     bool
}

// NewFakeDestination returns an empty destination.
func NewFakeDestination() *FakeDestination {
	return &FakeDestination{tables: make(map[string]*fakeTable)}
}

// CreateTable adds a table directly, bypassing SQL. Types follow the
// destination type names, e.g. "VARCHAR(10)".
func (d *FakeDestination) CreateTable(name string, columns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &fakeTable{}
	for _, c := range columns {
		n, typ, _ := strings.Cut(c, " ")
		t.Columns = append(t.Columns, fakeColumn{Name: n, Type: typ})
	}
	d.tables[name] = t
}

// SeedRows appends rows to an existing table, bypassing SQL.
func (d *FakeDestination) SeedRows(name string, rows ...map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[name].Rows = append(d.tables[name].Rows, rows...)
}

// HasTable reports whether the table exists.
func (d *FakeDestination) HasTable(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tables[name]
	return ok
}

// TableNames returns the existing tables in lexical order.
func (d *FakeDestination) TableNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tableNames()
}

// ColumnDefs returns "name TYPE" for each column of table, in order.
func (d *FakeDestination) ColumnDefs(name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[name]
	if !ok {
		return nil
	}
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name + " " + c.Type
	}
	return out
}

// Rows returns the rows of table.
func (d *FakeDestination) Rows(name string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[name]
	if !ok {
		return nil
	}
	return t.clone().Rows
}

// Truncates returns how many times table had its identity restarted.
func (d *FakeDestination) Truncates(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tables[name]; ok {
		return t.Truncates
	}
	return 0
}

// StatementsWithPrefix returns executed statements starting with prefix.
func (d *FakeDestination) StatementsWithPrefix(prefix string) []Statement {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Statement
	for _, s := range d.Statements {
		if strings.HasPrefix(s.SQL, prefix) {
			out = append(out, s)
		}
	}
	return out
}

// Exec implements the interface method for testing.
func (d *FakeDestination) Exec(ctx context.Context, sql string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exec(ctx, sql, args)
}

// Query implements the interface method for testing.
func (d *FakeDestination) Query(ctx context.Context, sql string, args ...any) ([]domain.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.QueryErr != nil {
		return nil, d.QueryErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch sql {
	case ddl.ExistingColumnsQuery:
		if args[0] != ddl.DefaultSchema {
			return nil, nil
		}
		t, ok := d.tables[fmt.Sprint(args[1])]
		if !ok {
			return nil, nil
		}
		out := make([]domain.Record, len(t.Columns))
		for i, c := range t.Columns {
			out[i] = domain.Record{Columns: []string{"column_name"}, Values: []any{c.Name}}
		}
		return out, nil
	case ddl.ListTablesQuery:
		if args[0] != ddl.DefaultSchema {
			return nil, nil
		}
		var out []domain.Record
		for _, n := range d.tableNames() {
			out = append(out, domain.Record{Columns: []string{"table_name"}, Values: []any{n}})
		}
		return out, nil
	}
	panic("unexpected call to FakeDestination.Query: " + sql)
}

// Begin implements the interface method for testing.
func (d *FakeDestination) Begin(ctx context.Context) (domain.DestinationTx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fakeTx{d: d, snapshot: d.snapshot()}, nil
}

// Ping implements the interface method for testing.
func (d *FakeDestination) Ping(context.Context) error { return nil }

// Close implements the interface method for testing.
func (d *FakeDestination) Close() { d.Closed = true }

func (d *FakeDestination) tableNames() []string {
	names := make([]string, 0, len(d.tables))
	for n := range d.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *FakeDestination) snapshot() map[string]*fakeTable {
	s := make(map[string]*fakeTable, len(d.tables))
	for n, t := range d.tables {
		s[n] = t.clone()
	}
	return s
}

func (d *FakeDestination) exec(ctx context.Context, sql string, args []any) error {
	d.Statements = append(d.Statements, Statement{SQL: sql, Args: args})
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ExecFn != nil {
		if err := d.ExecFn(ctx, sql, args); err != nil {
			return err
		}
	}

	if m := createRe.FindStringSubmatch(sql); m != nil {
		if err := checkSchema(unquote(m[1])); err != nil {
			return err
		}
		return d.create(unquote(m[2]), m[3])
	}
	if m := insertRe.FindStringSubmatch(sql); m != nil {
		if err := checkSchema(unquote(m[1])); err != nil {
			return err
		}
		return d.insert(unquote(m[2]), parseIdents(m[3]), args, m[5] != "", parseIdents(m[5]), m[6] == "NOTHING")
	}
	if m := dropRe.FindStringSubmatch(sql); m != nil {
		if unquote(m[1]) == ddl.DefaultSchema {
			delete(d.tables, unquote(m[2]))
		}
		return nil
	}
	if m := truncateRe.FindStringSubmatch(sql); m != nil {
		t, ok := d.tables[unquote(m[2])]
		if !ok || unquote(m[1]) != ddl.DefaultSchema {
			return &pgconn.PgError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", unquote(m[2]))}
		}
		t.Rows = nil
		t.Truncates++
		return nil
	}
	if sql == ddl.DeferConstraints || sql == ddl.RestoreConstraints {
		return nil
	}
	panic("unexpected statement in FakeDestination.Exec: " + sql)
}

func (d *FakeDestination) create(name, body string) error {
	if _, ok := d.tables[name]; ok {
		return nil
	}
	t := &fakeTable{}
	for _, def := range splitTopLevel(body) {
		if strings.HasPrefix(def, "PRIMARY KEY (") {
			t.Key = parseIdents(strings.TrimSuffix(strings.TrimPrefix(def, "PRIMARY KEY ("), ")"))
			continue
		}
		col, rest := readIdent(def)
		t.Columns = append(t.Columns, fakeColumn{Name: col, Type: strings.TrimSpace(rest)})
	}
	d.tables[name] = t
	return nil
}

func (d *FakeDestination) insert(name string, cols []string, args []any, upsert bool, conflict []string, doNothing bool) error {
	t, ok := d.tables[name]
	if !ok {
		return &pgconn.PgError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", name)}
	}
	if len(args) != len(cols) {
		return &pgconn.PgError{Code: "08P01", Message: fmt.Sprintf("bind message supplies %d parameters, but prepared statement requires %d", len(args), len(cols))}
	}

	row := make(map[string]any, len(cols))
	for i, c := range cols {
		col, ok := t.column(c)
		if !ok {
			return &pgconn.PgError{Code: "42703", Message: fmt.Sprintf("column %q of relation %q does not exist", c, name)}
		}
		if m := varcharRe.FindStringSubmatch(col.Type); m != nil {
			limit, _ := strconv.Atoi(m[1])
			if s, ok := args[i].(string); ok && utf8.RuneCountInString(s) > limit {
				return &pgconn.PgError{Code: "22001", Message: fmt.Sprintf("value too long for type character varying(%d)", limit)}
			}
		}
		row[c] = args[i]
	}

	if upsert && !sameSet(conflict, t.Key) {
		return &pgconn.PgError{Code: "42P10", Message: "there is no unique or exclusion constraint matching the ON CONFLICT specification"}
	}
	if len(t.Key) > 0 {
		for i, existing := range t.Rows {
			if !keyEqual(t.Key, existing, row) {
				continue
			}
			if !upsert {
				return &pgconn.PgError{Code: "23505", Message: fmt.Sprintf("duplicate key value violates unique constraint %q", name+"_pkey")}
			}
			if !doNothing {
				t.Rows[i] = row
			}
			return nil
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

type fakeTx struct {
	d        *FakeDestination
	parent   *fakeTx
	snapshot map[string]*fakeTable
	aborted  bool
	done     bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	if t.aborted {
		return &pgconn.PgError{Code: "25P02", Message: "current transaction is aborted, commands ignored until end of transaction block"}
	}
	if err := t.d.exec(ctx, sql, args); err != nil {
		for p := t; p != nil; p = p.parent {
			p.aborted = true
		}
		return err
	}
	return nil
}

func (t *fakeTx) Begin(ctx context.Context) (domain.DestinationTx, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	if t.aborted {
		return nil, &pgconn.PgError{Code: "25P02", Message: "current transaction is aborted, commands ignored until end of transaction block"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fakeTx{d: t.d, parent: t, snapshot: t.d.snapshot()}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	if t.aborted {
		t.d.tables = t.snapshot
		return pgx.ErrTxCommitRollback
	}
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	t.d.tables = t.snapshot
	for p := t.parent; p != nil; p = p.parent {
		p.aborted = false
	}
	return nil
}

func unquote(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// readIdent reads a leading quoted identifier and returns it with the rest.
func readIdent(s string) (string, string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, `"`) {
		return "", s
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] == '"' {
			if i+1 < len(s) && s[i+1] == '"' {
				b.WriteByte('"')
				i++
				continue
			}
			return b.String(), s[i+1:]
		}
		b.WriteByte(s[i])
	}
	return b.String(), ""
}

func parseIdents(s string) []string {
	var out []string
	for strings.TrimSpace(s) != "" {
		name, rest := readIdent(s)
		out = append(out, name)
		s = strings.TrimPrefix(strings.TrimSpace(rest), ",")
	}
	return out
}

// splitTopLevel splits a column definition list on commas outside quotes
// and parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return reflect.DeepEqual(x, y)
}

func keyEqual(key []string, a, b map[string]any) bool {
	for _, k := range key {
		if !reflect.DeepEqual(a[k], b[k]) {
			return false
		}
	}
	return true
}

var (
	_ domain.DestinationConnector = (*FakeDestination)(nil)
	_ domain.DestinationTx        = (*fakeTx)(nil)
)

// checkSchema rejects statements outside the only schema the fake holds.
func checkSchema(schema string) error {
	if schema != ddl.DefaultSchema {
		return &pgconn.PgError{Code: "3F000", Message: fmt.Sprintf("schema %q does not exist", schema)}
	}
	return nil
}
