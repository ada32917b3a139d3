// Package typemap holds the closed mapping from source (SQL Server dialect)
// column types to PostgreSQL column types.
package typemap

import (
	"fmt"
	"strings"

	"erpsync/internal/domain"
)

// Category groups source types that share a destination type and a value
// conversion.
type Category int

// Categories of the closed mapping.
const (
	Unsupported Category = iota
	Text
	SmallInt
	Integer
	BigInt
	Decimal
	DateTime
	Boolean
	Real
	Float
	Binary
	GUID
)

var categoryNames = map[Category]string{
	Unsupported: "unsupported",
	Text:        "text",
	SmallInt:    "smallint",
	Integer:     "integer",
	BigInt:      "bigint",
	Decimal:     "decimal",
	DateTime:    "datetime",
	Boolean:     "boolean",
	Real:        "real",
	Float:       "float",
	Binary:      "binary",
	GUID:        "guid",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// sourceTypes is the closed set. Keys are lower-case source type names.
var sourceTypes = map[string]Category{
	"char":             Text,
	"varchar":          Text,
	"nchar":            Text,
	"nvarchar":         Text,
	"text":             Text,
	"ntext":            Text,
	"tinyint":          SmallInt,
	"smallint":         SmallInt,
	"int":              Integer,
	"integer":          Integer,
	"bigint":           BigInt,
	"decimal":          Decimal,
	"numeric":          Decimal,
	"money":            Decimal,
	"smallmoney":       Decimal,
	"date":             DateTime,
	"datetime":         DateTime,
	"datetime2":        DateTime,
	"smalldatetime":    DateTime,
	"bit":              Boolean,
	"real":             Real,
	"float":            Float,
	"binary":           Binary,
	"varbinary":        Binary,
	"image":            Binary,
	"uniqueidentifier": GUID,
}

// destinationTypes gives the fixed PostgreSQL type per category. Text is
// refined by the declared length in DestinationType.
var destinationTypes = map[Category]string{
	Text:     "TEXT",
	SmallInt: "SMALLINT",
	Integer:  "INTEGER",
	BigInt:   "BIGINT",
	Decimal:  "NUMERIC",
	DateTime: "TIMESTAMP",
	Boolean:  "BOOLEAN",
	Real:     "REAL",
	Float:    "DOUBLE PRECISION",
	Binary:   "BYTEA",
	GUID:     "UUID",
}

// CategoryOf returns the category of a source type name.
func CategoryOf(sourceType string) (Category, error) {
	cat, ok := sourceTypes[normalize(sourceType)]
	if !ok {
		return Unsupported, &domain.UnsupportedTypeError{SourceType: sourceType}
	}
	return cat, nil
}

// MapType returns the destination type for a source type name without any
// length refinement.
func MapType(sourceType string) (string, error) {
	cat, err := CategoryOf(sourceType)
	if err != nil {
		return "", err
	}
	return destinationTypes[cat], nil
}

// DestinationType returns the destination type for a discovered column.
// Character columns with a bounded declared length keep it as VARCHAR(n) so
// the destination enforces the same limit as the source.
func DestinationType(col domain.Column) (string, error) {
	cat, err := CategoryOf(col.SourceType)
	if err != nil {
		return "", err
	}
	if cat == Text && col.MaxLength > 0 && !isLargeText(col.SourceType) {
		return fmt.Sprintf("VARCHAR(%d)", col.MaxLength), nil
	}
	return destinationTypes[cat], nil
}

// SupportedSourceTypes lists the closed set, for diagnostics.
func SupportedSourceTypes() []string {
	out := make([]string, 0, len(sourceTypes))
	for t := range sourceTypes {
		out = append(out, t)
	}
	return out
}

func isLargeText(sourceType string) bool {
	switch normalize(sourceType) {
	case "text", "ntext":
		return true
	}
	return false
}

// normalize lower-cases and strips any "(n)" suffix some drivers report.
func normalize(sourceType string) string {
	t := strings.ToLower(strings.TrimSpace(sourceType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
