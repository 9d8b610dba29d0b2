package matching

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// equals compares deeply. Numbers compare by value whatever their Go kind,
// and a single element list equals its element.
func equals(actual, expected any) bool {
	as, aList := toList(actual)
	es, eList := toList(expected)
	switch {
	case aList && eList:
		if len(as) != len(es) {
			return false
		}
		for i := range as {
			if !equals(as[i], es[i]) {
				return false
			}
		}
		return true
	case aList:
		return len(as) == 1 && equals(as[0], expected)
	case eList:
		return len(es) == 1 && equals(actual, es[0])
	}

	if af, ok := toNumber(actual); ok {
		if ef, ok := toNumber(expected); ok {
			return af == ef
		}
		return false
	}
	if am, ok := actual.(map[string]any); ok {
		em, ok := expected.(map[string]any)
		if !ok || len(am) != len(em) {
			return false
		}
		for k, v := range am {
			ev, ok := em[k]
			if !ok || !equals(v, ev) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(actual, expected)
}

// contains checks substring for strings and membership for lists. A list
// operand matches when any of its elements is contained.
func contains(actual, expected any, fold bool) bool {
	if es, ok := toList(expected); ok {
		for _, e := range es {
			if contains(actual, e, fold) {
				return true
			}
		}
		return false
	}

	if as, ok := toList(actual); ok {
		for _, a := range as {
			if fold {
				if s, ok := a.(string); ok {
					if e, ok := expected.(string); ok && strings.EqualFold(s, e) {
						return true
					}
					continue
				}
			}
			if equals(a, expected) {
				return true
			}
		}
		return false
	}

	s, ok := actual.(string)
	if !ok {
		return false
	}
	e := scalarString(expected)
	if fold {
		return strings.Contains(strings.ToLower(s), strings.ToLower(e))
	}
	return strings.Contains(s, e)
}

// greaterThan compares numerically. Numeric strings are parsed; anything
// else does not match.
func greaterThan(actual, expected any) bool {
	if as, ok := toList(actual); ok {
		if len(as) != 1 {
			return false
		}
		actual = as[0]
	}
	a, ok := parseNumber(actual)
	if !ok {
		return false
	}
	e, ok := parseNumber(expected)
	if !ok {
		return false
	}
	return a > e
}

func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func parseNumber(v any) (float64, bool) {
	if f, ok := toNumber(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
