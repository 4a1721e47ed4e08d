package value

import (
	"bytes"
	"encoding/json"
)

// Record is one result row: column names mapped to values, in column order.
type Record struct {
	cols []string
	vals []Value
	idx  map[string]int
}

// NewRecord returns an empty record with room for n columns.
func NewRecord(n int) *Record {
	return &Record{
		cols: make([]string, 0, n),
		vals: make([]Value, 0, n),
		idx:  make(map[string]int, n),
	}
}

// Set assigns v to column, appending the column if it is new.
func (r *Record) Set(column string, v Value) {
	if r.idx == nil {
		r.idx = make(map[string]int)
	}
	if i, ok := r.idx[column]; ok {
		r.vals[i] = v
		return
	}
	r.idx[column] = len(r.cols)
	r.cols = append(r.cols, column)
	r.vals = append(r.vals, v)
}

// Get returns the value for column and whether the column is present.
func (r *Record) Get(column string) (Value, bool) {
	i, ok := r.idx[column]
	if !ok {
		return Value{}, false
	}
	return r.vals[i], true
}

// Len returns the number of columns.
func (r *Record) Len() int { return len(r.cols) }

// Columns returns the column names in order.
func (r *Record) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

// Each calls fn for every column in order.
func (r *Record) Each(fn func(column string, v Value)) {
	for i, c := range r.cols {
		fn(c, r.vals[i])
	}
}

// Map flattens the record into a plain map of Go values (see Value.Any).
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		m[c] = r.vals[i].Any()
	}
	return m
}

// Equal reports whether both records carry the same columns in the same
// order with equal values.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i, c := range r.cols {
		if o.cols[i] != c || !r.vals[i].Equal(o.vals[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes a JSON object whose keys keep column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := r.vals[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
