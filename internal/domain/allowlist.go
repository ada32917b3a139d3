package domain

import "sort"

// AllowList restricts an operation to named tables. The zero value allows
// nothing; AllTables allows everything.
type AllowList struct {
	all   bool
	names map[string]struct{}
}

// AllTables returns an allow-list that admits every table.
func AllTables() AllowList {
	return AllowList{all: true}
}

// OnlyTables returns an allow-list of exactly the given names.
// Names are matched case-sensitively, as table identifiers are quoted.
func OnlyTables(names ...string) AllowList {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return AllowList{names: set}
}

// Allows reports whether table is admitted.
func (a AllowList) Allows(table string) bool {
	if a.all {
		return true
	}
	_, ok := a.names[table]
	return ok
}

// All reports whether the list admits every table.
func (a AllowList) All() bool { return a.all }

// Names returns the listed names in lexical order; nil for AllTables.
func (a AllowList) Names() []string {
	if a.all {
		return nil
	}
	out := make([]string, 0, len(a.names))
	for n := range a.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
