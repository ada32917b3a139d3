package pipeline

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"erpsync/internal/typemap"
)

// sourceTimeLayouts are tried in order when a date-time arrives as text.
var sourceTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// convertValue turns a loosely-typed source value into the Go value bound
// for the destination column category. nil stays nil (SQL NULL).
func convertValue(cat typemap.Category, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch cat {
	case typemap.Text:
		return toText(v), nil
	case typemap.SmallInt:
		return toInt(v, math.MinInt16, math.MaxInt16)
	case typemap.Integer:
		return toInt(v, math.MinInt32, math.MaxInt32)
	case typemap.BigInt:
		return toInt(v, math.MinInt64, math.MaxInt64)
	case typemap.Decimal:
		return toDecimal(v)
	case typemap.DateTime:
		return toTime(v)
	case typemap.Boolean:
		return toBool(v)
	case typemap.Real, typemap.Float:
		return toFloat(v)
	case typemap.Binary:
		return toBytes(v)
	case typemap.GUID:
		return toUUID(v)
	default:
		return v, nil
	}
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toInt(v any, lo, hi int64) (int64, error) {
	var n int64
	switch t := v.(type) {
	case int64:
		n = t
	case int32:
		n = int64(t)
	case int16:
		n = int64(t)
	case int8:
		n = int64(t)
	case int:
		n = int64(t)
	case uint8:
		n = int64(t)
	case bool:
		if t {
			n = 1
		}
	case string, []byte:
		parsed, err := strconv.ParseInt(strings.TrimSpace(toText(t)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", toText(t))
		}
		n = parsed
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("integer %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// toDecimal keeps decimals as their exact digit string; the destination
// parses it into NUMERIC without passing through float.
func toDecimal(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return validDecimal(strings.TrimSpace(t))
	case []byte:
		return validDecimal(strings.TrimSpace(string(t)))
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int:
		return strconv.Itoa(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", fmt.Errorf("decimal value %v is not finite", t)
		}
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	default:
		return "", fmt.Errorf("cannot convert %T to decimal", v)
	}
}

func validDecimal(s string) (string, error) {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("not a decimal: %q", s)
	}
	return s, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string, []byte:
		s := strings.TrimSpace(toText(t))
		for _, layout := range sourceTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("not a date-time: %q", s)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to date-time", v)
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		return t != 0, nil
	case int:
		return t != 0, nil
	case uint8:
		return t != 0, nil
	case string, []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(toText(t)))
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", toText(t))
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toText(t)), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", toText(t))
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

func toBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to binary", v)
	}
}

func toUUID(v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case [16]byte:
		return uuid.UUID(t), nil
	case []byte:
		if len(t) == 16 {
			return uuid.FromBytes(t)
		}
		return uuid.ParseBytes(t)
	case string:
		return uuid.Parse(strings.TrimSpace(t))
	default:
		return uuid.Nil, fmt.Errorf("cannot convert %T to uuid", v)
	}
}

// maxContextValueLen bounds how much of a single value ends up in logs.
const maxContextValueLen = 64

// formatValue renders a value for row context in logs and results: strings
// quoted with doubled single quotes, date-times as ISO-8601, NULL, and
// true/false. It is never used to build SQL.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(truncate(t), "'", "''") + "'"
	case []byte:
		return `'\x` + truncate(hex.EncodeToString(t)) + "'"
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	case uuid.UUID:
		return "'" + t.String() + "'"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(truncate(t.String()), "'", "''") + "'"
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string) string {
	if len(s) <= maxContextValueLen {
		return s
	}
	cut := maxContextValueLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
