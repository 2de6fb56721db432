package value

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FromGo converts a plain Go value into a Value.
//
// Accepted: nil, Value, string, bool, all signed and unsigned integer kinds
// that fit int64, json.Number holding an integer, []any and map[string]any.
// Floats are rejected.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		if err := checkUTF8(val); err != nil {
			return nil, err
		}
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > 1<<63-1 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are not supported: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported: %v", val)
	case []any:
		l := make(List, len(val))
		for i, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = e
		}
		return l, nil
	case []string:
		l := make(List, len(val))
		for i, s := range val {
			if err := checkUTF8(s); err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = String(s)
		}
		return l, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			if err := checkUTF8(k); err != nil {
				return nil, fmt.Errorf("key: %w", err)
			}
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m[k] = e
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Value back into plain Go values:
// nil, string, int64, bool, []any and map[string]any.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// StringAt returns args[i] as a string.
func StringAt(args []Value, i int) (string, error) {
	if i < 0 || i >= len(args) {
		return "", fmt.Errorf("argument %d: missing (have %d)", i, len(args))
	}
	s, ok := args[i].(String)
	if !ok {
		return "", fmt.Errorf("argument %d: expected string, got %T", i, args[i])
	}
	return string(s), nil
}

// IntAt returns args[i] as an int64.
func IntAt(args []Value, i int) (int64, error) {
	if i < 0 || i >= len(args) {
		return 0, fmt.Errorf("argument %d: missing (have %d)", i, len(args))
	}
	n, ok := args[i].(Int)
	if !ok {
		return 0, fmt.Errorf("argument %d: expected int, got %T", i, args[i])
	}
	return int64(n), nil
}

// Format renders v as compact JSON for logs and CLI output.
func Format(v Value) string {
	b, err := Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
