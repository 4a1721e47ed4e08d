package value

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/rowgate/internal/errs"
)

// Rule maps native type names matching Pattern to a portable Type.
// Patterns are anchored and matched against the normalized native name.
type Rule struct {
	Pattern *regexp.Regexp
	Type    Type
}

// NewRule compiles pattern into an anchored Rule. It panics on a bad pattern,
// so rules are meant to be declared at package level.
func NewRule(pattern string, t Type) Rule {
	return Rule{Pattern: regexp.MustCompile(`^(?:` + pattern + `)$`), Type: t}
}

// defaultRules covers the native names reported by Postgres, MySQL, SQLite
// and SQL Server catalogs. Order matters: the first match wins.
var defaultRules = []Rule{
	NewRule(`.*\[\]|_.+`, Unknown), // postgres arrays
	NewRule(`bit\((?:[2-9]|[1-9][0-9]+)\)`, Binary),
	NewRule(`bool|boolean|bit|tinyint\(1\)|bit\(1\)`, Boolean),
	NewRule(`tinyint|smallint|mediumint|int|integer|bigint|int2|int4|int8|serial|serial2|serial4|serial8|smallserial|bigserial|year`, Integer),
	NewRule(`real|float|float4|float8|double|double precision|numeric|decimal|dec|number|money|smallmoney`, Real),
	NewRule(`timestamp|timestamptz|timestamp with time zone|timestamp without time zone|datetime|datetime2|smalldatetime|datetimeoffset|date`, Timestamp),
	NewRule(`bytea|blob|tinyblob|mediumblob|longblob|binary|varbinary|image|rowversion`, Binary),
	NewRule(`text|tinytext|mediumtext|longtext|ntext|char|character|nchar|varchar|nvarchar|character varying|bpchar|citext|name|string|clob|uuid|uniqueidentifier|enum|set|xml`, Text),
}

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	typeParams = regexp.MustCompile(`\(.*?\)`)
)

// Mapper converts between native column types and portable values.
// It is immutable and safe for concurrent use.
type Mapper struct {
	rules []Rule
}

// NewMapper returns a Mapper using the default rule table. Extra rules are
// consulted before the defaults, so they can both add and override mappings.
func NewMapper(extra ...Rule) *Mapper {
	rules := make([]Rule, 0, len(extra)+len(defaultRules))
	rules = append(rules, extra...)
	rules = append(rules, defaultRules...)
	return &Mapper{rules: rules}
}

// Default is the mapper used when no custom rules are configured.
var Default = NewMapper()

// ToPortable classifies a native type name. It never fails: names no rule
// matches yield Unknown.
func (m *Mapper) ToPortable(native string) Type {
	full := normalize(native)
	if full == "" {
		return Unknown
	}
	for _, r := range m.rules {
		if r.Pattern.MatchString(full) {
			return r.Type
		}
	}
	base := strings.TrimSpace(typeParams.ReplaceAllString(full, ""))
	base = spaceRun.ReplaceAllString(base, " ")
	for _, r := range m.rules {
		if r.Pattern.MatchString(base) {
			return r.Type
		}
	}
	return Unknown
}

func normalize(native string) string {
	s := strings.ToLower(strings.TrimSpace(native))
	s = spaceRun.ReplaceAllString(s, " ")
	for _, suffix := range []string{" zerofill", " unsigned", " signed"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

// --- write path ---

// CoerceForWrite validates raw against t and returns the value to bind.
// nil (and a null Value) bind as SQL NULL. Text and Unknown pass through
// unchanged. The error, if any, has kind InvalidValue.
func (m *Mapper) CoerceForWrite(t Type, raw any) (any, error) {
	if v, ok := raw.(Value); ok {
		raw = v.Any()
	}
	if raw == nil {
		return nil, nil
	}

	switch t {
	case Integer:
		return toInteger(raw)
	case Real:
		return toReal(raw)
	case Boolean:
		return toBoolean(raw)
	case Timestamp:
		return toTimestamp(raw)
	case Binary:
		return toBinary(raw)
	default:
		return raw, nil
	}
}

func invalid(format string, args ...any) error {
	return errs.Newf(errs.ErrKindInvalidValue, format, args...)
}

func toInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintToInt(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintToInt(v)
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, invalid("%q is not an integer", v.String())
		}
		return floatToInt(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, invalid("%q is not an integer", v)
		}
		return n, nil
	default:
		return 0, invalid("%T cannot be stored as an integer", raw)
	}
}

func uintToInt(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, invalid("%d overflows a 64-bit integer", u)
	}
	return int64(u), nil
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, invalid("%v is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, invalid("%v overflows a 64-bit integer", f)
	}
	return int64(f), nil
}

func toReal(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		n, err := strconv.ParseFloat(fmt.Sprint(v), 64)
		if err != nil {
			return 0, invalid("%v is not a number", v)
		}
		return n, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, invalid("%q is not a number", v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalid("%q is not a number", v)
		}
		return f, nil
	default:
		return 0, invalid("%T cannot be stored as a number", raw)
	}
}

func toBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		return parseBool(v)
	case json.Number:
		return parseBool(v.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float64:
		return parseBool(fmt.Sprint(v))
	default:
		return false, invalid("%T cannot be stored as a boolean", raw)
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, invalid("%q is not a boolean", s)
}

// timeLayouts are tried in order when a timestamp arrives as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, ok := parseTime(v); ok {
			return t, nil
		}
		return time.Time{}, invalid("%q is not a timestamp", v)
	default:
		return time.Time{}, invalid("%T cannot be stored as a timestamp", raw)
	}
}

func toBinary(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, invalid("binary values must be base64 encoded")
		}
		return b, nil
	default:
		return nil, invalid("%T cannot be stored as binary", raw)
	}
}

// --- read path ---

// Decode converts a driver-level result cell into a Value, inferring the
// portable type from the Go type the driver produced. Native nulls become
// Null.
func (m *Mapper) Decode(raw any) Value {
	raw = unwrapValuer(raw)
	switch v := raw.(type) {
	case nil:
		return Null()
	case bool:
		return BooleanValue(v)
	case int:
		return IntegerValue(int64(v))
	case int8:
		return IntegerValue(int64(v))
	case int16:
		return IntegerValue(int64(v))
	case int32:
		return IntegerValue(int64(v))
	case int64:
		return IntegerValue(v)
	case uint8:
		return IntegerValue(int64(v))
	case uint16:
		return IntegerValue(int64(v))
	case uint32:
		return IntegerValue(int64(v))
	case uint:
		return decodeUint(uint64(v))
	case uint64:
		return decodeUint(v)
	case float32:
		return RealValue(float64(v))
	case float64:
		return RealValue(v)
	case string:
		return TextValue(v)
	case []byte:
		return BinaryValue(cloneBytes(v))
	case time.Time:
		return TimestampValue(v)
	default:
		return UnknownValue(render(raw))
	}
}

// DecodeAs converts a result cell using the column's declared type as a hint.
// Drivers often return text or integers for typed columns (MySQL []byte,
// SQLite 0/1 booleans); DecodeAs recovers the declared type when the cell
// parses, and falls back to Decode otherwise. Unknown columns always decode
// to opaque text.
func (m *Mapper) DecodeAs(t Type, raw any) Value {
	raw = unwrapValuer(raw)
	if raw == nil {
		return Null()
	}

	switch t {
	case Text:
		switch v := raw.(type) {
		case string:
			return TextValue(v)
		case []byte:
			return TextValue(string(v))
		}
		return TextValue(render(raw))

	case Integer:
		if n, err := toInteger(textOf(raw)); err == nil {
			return IntegerValue(n)
		}

	case Real:
		if f, err := toReal(textOf(raw)); err == nil {
			return RealValue(f)
		}

	case Boolean:
		if b, ok := raw.([]byte); ok && len(b) == 1 && b[0] <= 1 {
			return BooleanValue(b[0] == 1)
		}
		if b, err := toBoolean(textOf(raw)); err == nil {
			return BooleanValue(b)
		}

	case Timestamp:
		switch v := raw.(type) {
		case time.Time:
			return TimestampValue(v)
		case string:
			if ts, ok := parseTime(v); ok {
				return TimestampValue(ts)
			}
		case []byte:
			if ts, ok := parseTime(string(v)); ok {
				return TimestampValue(ts)
			}
		}

	case Binary:
		switch v := raw.(type) {
		case []byte:
			return BinaryValue(cloneBytes(v))
		case string:
			return BinaryValue([]byte(v))
		}

	case Unknown:
		return UnknownValue(render(raw))
	}

	return m.Decode(raw)
}

func decodeUint(u uint64) Value {
	if u > math.MaxInt64 {
		return TextValue(strconv.FormatUint(u, 10))
	}
	return IntegerValue(int64(u))
}

// textOf turns []byte cells into strings so the write-path parsers apply.
func textOf(raw any) any {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

// unwrapValuer resolves driver-specific wrapper types (pgtype.Numeric,
// pgtype.Interval, …) into plain driver values.
func unwrapValuer(raw any) any {
	for i := 0; i < 4; i++ {
		if _, isTime := raw.(time.Time); isTime {
			return raw
		}
		valuer, ok := raw.(driver.Valuer)
		if !ok {
			return raw
		}
		v, err := valuer.Value()
		if err != nil {
			return raw
		}
		raw = v
	}
	return raw
}

// render formats any cell as text.
func render(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(raw)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
