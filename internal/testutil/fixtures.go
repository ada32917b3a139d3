package testutil

import (
	"time"

	"erpsync/internal/domain"
)

// CustomerTable returns the Customer(Id int, Name nvarchar(n), CreatedAt
// datetime) source table with the given rows.
func CustomerTable(nameLen int, rows ...[]any) SourceTable {
	return SourceTable{
		Name: "Customer",
		Columns: []domain.Column{
			{Name: "Id", SourceType: "int", Precision: 10, PrimaryKey: true},
			{Name: "Name", SourceType: "nvarchar", MaxLength: nameLen, Nullable: true},
			{Name: "CreatedAt", SourceType: "datetime", Nullable: true},
		},
		Rows: rows,
	}
}

// CustomerRow builds one Customer row.
func CustomerRow(id int64, name string, created time.Time) []any {
	return []any{id, name, created}
}
