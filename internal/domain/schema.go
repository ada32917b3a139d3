package domain

import "sort"

// Column describes one source column as reported by the information schema.
type Column struct {
	Name       string
	SourceType string // dialect type name, e.g. "nvarchar"
	MaxLength  int    // character/binary length; -1 means unbounded, 0 unknown
	Precision  int
	Scale      int
	Nullable   bool
	Ordinal    int
	PrimaryKey bool
}

// TableDescriptor is one base table in the source schema with its columns in
// discovery order. Descriptors are rebuilt on every catalog run.
type TableDescriptor struct {
	Schema    string // source schema the table was discovered in
	TableName string
	Columns   []Column
}

// ColumnNames returns the column names in discovery order.
func (t TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t TableDescriptor) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the primary key column names in discovery order.
func (t TableDescriptor) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// ColumnSet is the set of column names that exist for a destination table.
type ColumnSet map[string]struct{}

// NewColumnSet builds a set from names.
func NewColumnSet(names ...string) ColumnSet {
	s := make(ColumnSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s ColumnSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s ColumnSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Record is one loosely-typed row. Columns and Values are parallel and keep
// the order in which the query returned them.
type Record struct {
	Columns []string
	Values  []any
}

// Get returns the value for column name.
func (r Record) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return nil, false
}
