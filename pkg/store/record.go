// Package store holds the read-side view of tracked records: a loose field
// map plus the lookups change notification needs (by id, by equality filter).
package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// Record is a snapshot of one row keyed by field name (camelCase).
type Record map[string]any

// Where is an equality filter. A nil value matches absent / NULL fields.
type Where map[string]any

// Reader is the read access change notification depends on.
// GetByID returns (nil, nil) when no record exists.
type Reader interface {
	GetByID(ctx context.Context, entity, id string) (Record, error)
	Find(ctx context.Context, entity string, where Where) ([]Record, error)
}

// ID returns the record's own id.
func (r Record) ID() (string, bool) { return r.String("id") }

// String reads field as an identifier. Relation fields may hold either a bare
// id or a nested record carrying "id".
func (r Record) String(field string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r[field]
	if !ok {
		return "", false
	}
	return idString(v)
}

// IsSet reports whether field carries a non-empty value. Used for soft-delete
// markers, which may be timestamps, strings, flags or nullable SQL values
// depending on the store. Zero numbers and false count as unset.
func (r Record) IsSet(field string) bool {
	if r == nil {
		return false
	}
	return isSet(r[field])
}

func isSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case time.Time:
		return !t.IsZero()
	case *time.Time:
		return t != nil && !t.IsZero()
	case string:
		return t != ""
	case []byte:
		return len(t) > 0
	case bool:
		return t
	case driver.Valuer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return false
		}
		dv, err := t.Value()
		if err != nil {
			return true
		}
		return isSet(dv)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return isSet(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	}
	return true
}

func idString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case *string:
		if t == nil {
			return "", false
		}
		return *t, *t != ""
	case []byte:
		return string(t), len(t) > 0
	case Record:
		return t.String("id")
	case map[string]any:
		return Record(t).String("id")
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t), true
	case fmt.Stringer:
		s := t.String()
		return s, s != ""
	}
	return "", false
}

func matches(rec Record, where Where) bool {
	for field, want := range where {
		if want == nil {
			if rec.IsSet(field) {
				return false
			}
			continue
		}
		got, ok := rec[field]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	as, aok := idString(a)
	bs, bok := idString(b)
	if aok && bok {
		return as == bs
	}
	return reflect.DeepEqual(a, b)
}
