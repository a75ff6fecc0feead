package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Truthy reports whether v counts as true in conditions. nil, false,
// zero, NaN and the empty string are falsy; everything else is truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case int64:
		return x != 0
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	default:
		return true
	}
}

// Stringify renders v for concatenation and interpolation output.
// nil renders empty so failed lookups disappear from attribute values.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// asNumber coerces numeric kinds to float64. Strings do not coerce;
// "1"+"2" concatenates rather than adds.
func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

// looseEqual compares across numeric kinds and falls back to deep
// equality for composites.
func looseEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return reflect.DeepEqual(a, b)
}

func compare(op string, a, b any) (any, error) {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return applyOrder(op, cmpFloat(af, bf)), nil
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return applyOrder(op, cmpString(as, bs)), nil
		}
	}
	return nil, fmt.Errorf("operator %q cannot compare %T and %T", op, a, b)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

// member resolves obj.name. Missing map keys resolve to nil so that
// optional context fields stay soft.
func member(obj any, name string) (any, error) {
	switch x := obj.(type) {
	case nil:
		return nil, fmt.Errorf("cannot read property %q of null", name)
	case map[string]any:
		return x[name], nil
	case map[string]string:
		if v, ok := x[name]; ok {
			return v, nil
		}
		return nil, nil
	case string:
		if name == "length" {
			return float64(len(x)), nil
		}
		return nil, nil
	case []any:
		if name == "length" {
			return float64(len(x)), nil
		}
		return nil, fmt.Errorf("cannot read property %q of list", name)
	case []string:
		if name == "length" {
			return float64(len(x)), nil
		}
		return nil, fmt.Errorf("cannot read property %q of list", name)
	default:
		rv := reflect.ValueOf(obj)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(name))
			if !v.IsValid() {
				return nil, nil
			}
			return v.Interface(), nil
		}
		return nil, fmt.Errorf("cannot read property %q of %T", name, obj)
	}
}

// index resolves obj[key] for lists, maps and strings.
func index(obj, key any) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot index null")
	}
	if f, ok := asNumber(key); ok {
		i := int(f)
		switch x := obj.(type) {
		case []any:
			if i < 0 || i >= len(x) {
				return nil, nil
			}
			return x[i], nil
		case []string:
			if i < 0 || i >= len(x) {
				return nil, nil
			}
			return x[i], nil
		case string:
			if i < 0 || i >= len(x) {
				return nil, nil
			}
			return string(x[i]), nil
		}
	}
	if s, ok := key.(string); ok {
		return member(obj, s)
	}
	return nil, fmt.Errorf("cannot index %T with %T", obj, key)
}
