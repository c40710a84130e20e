package postgres

import (
	"reflect"
	"sync"
)

// column is a db-tagged field reachable through an index path (embedded structs included).
type column struct {
	name  string
	index []int
}

var columnCache sync.Map // reflect.Type -> []column

func columnsOf(t reflect.Type) []column {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			path := append(append([]int(nil), prefix...), i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type, path)
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			cols = append(cols, column{name: tag, index: path})
		}
	}
	if t.Kind() == reflect.Struct {
		walk(t, nil)
	}

	columnCache.Store(t, cols)
	return cols
}

// Columns returns the db column names of T in field order, embedded structs first-come.
//
//	var itemColumns = postgres.Columns[ledger.InventoryItem]()
func Columns[T any]() []string {
	cols := columnsOf(reflect.TypeOf((*T)(nil)).Elem())
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// Row maps the db-tagged fields of v (a struct or pointer to struct) to their values.
func Row(v any) map[string]any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	cols := columnsOf(rv.Type())
	row := make(map[string]any, len(cols))
	for _, c := range cols {
		row[c.name] = rv.FieldByIndex(c.index).Interface()
	}
	return row
}

// Values returns the values of v for columns, in order. Unknown columns yield nil.
func Values(columns []string, v any) []any {
	row := Row(v)
	out := make([]any, len(columns))
	for i, name := range columns {
		out[i] = row[name]
	}
	return out
}
