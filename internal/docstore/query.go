package docstore

import (
	"reflect"
	"strings"
)

// Operator is a filter comparison.
type Operator string

const (
	Eq            Operator = "=="
	Gte           Operator = ">="
	Lte           Operator = "<="
	ArrayContains Operator = "array-contains"
)

// PrefixSentinel sorts after every character expected in display names, so
// [key, key+PrefixSentinel] bounds all strings starting with key.
const PrefixSentinel = "~"

// Filter is a single field predicate.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Where builds a Filter.
func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// PrefixRange returns the range filters matching string fields that start with key.
func PrefixRange(field, key string) []Filter {
	return []Filter{
		Where(field, Gte, key),
		Where(field, Lte, key+PrefixSentinel),
	}
}

// Query selects documents of one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Matches evaluates the query filters against a document's data.
func (q Query) Matches(data map[string]any) bool {
	for _, f := range q.Filters {
		want, err := Normalize(f.Value)
		if err != nil {
			return false
		}
		got, ok := data[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case Eq:
			if !reflect.DeepEqual(got, want) {
				return false
			}
		case Gte:
			c, ok := compareValues(got, want)
			if !ok || c < 0 {
				return false
			}
		case Lte:
			c, ok := compareValues(got, want)
			if !ok || c > 0 {
				return false
			}
		case ArrayContains:
			arr, ok := got.([]any)
			if !ok || !containsValue(arr, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders two JSON scalars of the same kind.
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return 0, false
		}
		return 0, true
	}
	return 0, false
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}
