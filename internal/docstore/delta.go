package docstore

import "fmt"

// Delta is one field change of an Update. Union deltas append the values
// that are not already present in an array field.
type Delta struct {
	Field   string
	Value   any
	Union   []any
	isUnion bool
}

// SetField replaces a field.
func SetField(field string, value any) Delta {
	return Delta{Field: field, Value: value}
}

// ArrayUnion appends the missing values to an array field, creating it if needed.
func ArrayUnion(field string, values ...any) Delta {
	return Delta{Field: field, Union: values, isUnion: true}
}

// ApplyDeltas mutates data in place.
func ApplyDeltas(data map[string]any, deltas []Delta) error {
	for _, d := range deltas {
		if !d.isUnion {
			v, err := Normalize(d.Value)
			if err != nil {
				return fmt.Errorf("field %q: %w", d.Field, err)
			}
			data[d.Field] = v
			continue
		}
		var arr []any
		switch cur := data[d.Field].(type) {
		case nil:
		case []any:
			arr = cur
		default:
			return fmt.Errorf("field %q: array union on %T", d.Field, cur)
		}
		for _, raw := range d.Union {
			v, err := Normalize(raw)
			if err != nil {
				return fmt.Errorf("field %q: %w", d.Field, err)
			}
			if !containsValue(arr, v) {
				arr = append(arr, v)
			}
		}
		if arr == nil {
			arr = []any{}
		}
		data[d.Field] = arr
	}
	return nil
}
