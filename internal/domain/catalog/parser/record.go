package parser

import "sort"

// Record is one parsed data row. Every value is reachable under its raw
// header and under the normalized header. Records are never mutated after
// construction.
type Record struct {
	fields map[string]string
}

// NewRecord copies fields into a Record as-is, without adding normalized keys.
func NewRecord(fields map[string]string) Record {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{fields: cp}
}

// Value returns the value stored under key exactly as written.
func (r Record) Value(key string) (string, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Keys returns every key in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Record) Len() int {
	return len(r.fields)
}

// Map returns a copy of the record's fields.
func (r Record) Map() map[string]string {
	cp := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		cp[k] = v
	}
	return cp
}
