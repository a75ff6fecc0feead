package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// registerDefaults installs the helper functions every evaluator
// starts with. Callers can shadow or extend them via RegisterFunc.
func registerDefaults(e *Evaluator) {
	defaults := map[string]Function{
		"upper": func(args ...any) (any, error) {
			s, err := argString("upper", args, 0)
			if err != nil {
				return nil, err
			}
			return strings.ToUpper(s), nil
		},
		"lower": func(args ...any) (any, error) {
			s, err := argString("lower", args, 0)
			if err != nil {
				return nil, err
			}
			return strings.ToLower(s), nil
		},
		"trim": func(args ...any) (any, error) {
			s, err := argString("trim", args, 0)
			if err != nil {
				return nil, err
			}
			return strings.TrimSpace(s), nil
		},
		"replace": func(args ...any) (any, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("replace expects 3 arguments, got %d", len(args))
			}
			return strings.ReplaceAll(Stringify(args[0]), Stringify(args[1]), Stringify(args[2])), nil
		},
		"split": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("split expects 2 arguments, got %d", len(args))
			}
			parts := strings.Split(Stringify(args[0]), Stringify(args[1]))
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		},
		"join": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("join expects 2 arguments, got %d", len(args))
			}
			list, ok := args[0].([]any)
			if !ok {
				return nil, fmt.Errorf("join expects a list, got %T", args[0])
			}
			parts := make([]string, len(list))
			for i, v := range list {
				parts[i] = Stringify(v)
			}
			return strings.Join(parts, Stringify(args[1])), nil
		},
		"contains": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
			}
			if list, ok := args[0].([]any); ok {
				for _, v := range list {
					if looseEqual(v, args[1]) {
						return true, nil
					}
				}
				return false, nil
			}
			return strings.Contains(Stringify(args[0]), Stringify(args[1])), nil
		},
		"startsWith": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("startsWith expects 2 arguments, got %d", len(args))
			}
			return strings.HasPrefix(Stringify(args[0]), Stringify(args[1])), nil
		},
		"endsWith": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("endsWith expects 2 arguments, got %d", len(args))
			}
			return strings.HasSuffix(Stringify(args[0]), Stringify(args[1])), nil
		},
		"len": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
			}
			switch x := args[0].(type) {
			case nil:
				return float64(0), nil
			case string:
				return float64(len(x)), nil
			case []any:
				return float64(len(x)), nil
			case []string:
				return float64(len(x)), nil
			case map[string]any:
				return float64(len(x)), nil
			default:
				return nil, fmt.Errorf("len: unsupported type %T", args[0])
			}
		},
		"abs": numericFunc("abs", math.Abs),
		"round": numericFunc("round", func(f float64) float64 {
			return math.Round(f)
		}),
		"floor": numericFunc("floor", math.Floor),
		"ceil":  numericFunc("ceil", math.Ceil),
		"min": func(args ...any) (any, error) {
			return fold("min", args, math.Min)
		},
		"max": func(args ...any) (any, error) {
			return fold("max", args, math.Max)
		},
		"now": func(args ...any) (any, error) {
			return float64(time.Now().UnixMilli()), nil
		},
		"default": func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("default expects 2 arguments, got %d", len(args))
			}
			if Truthy(args[0]) {
				return args[0], nil
			}
			return args[1], nil
		},
		"json": func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("json expects 1 argument, got %d", len(args))
			}
			b, err := json.Marshal(args[0])
			if err != nil {
				return nil, fmt.Errorf("json: %w", err)
			}
			return string(b), nil
		},
		"first": func(args ...any) (any, error) {
			list, err := argList("first", args)
			if err != nil {
				return nil, err
			}
			if len(list) == 0 {
				return nil, nil
			}
			return list[0], nil
		},
		"last": func(args ...any) (any, error) {
			list, err := argList("last", args)
			if err != nil {
				return nil, err
			}
			if len(list) == 0 {
				return nil, nil
			}
			return list[len(list)-1], nil
		},
	}
	for name, fn := range defaults {
		e.funcs[name] = fn
	}
}

func argString(name string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s expects at least %d arguments, got %d", name, i+1, len(args))
	}
	return Stringify(args[i]), nil
}

func argList(name string, args []any) ([]any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, fmt.Errorf("%s expects a list, got %T", name, args[0])
	}
	return list, nil
}

func numericFunc(name string, fn func(float64) float64) Function {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		f, ok := asNumber(args[0])
		if !ok {
			return nil, fmt.Errorf("%s expects a number, got %T", name, args[0])
		}
		return fn(f), nil
	}
}

func fold(name string, args []any, fn func(a, b float64) float64) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s expects at least 1 argument", name)
	}
	acc, ok := asNumber(args[0])
	if !ok {
		return nil, fmt.Errorf("%s expects numbers, got %T", name, args[0])
	}
	for _, v := range args[1:] {
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s expects numbers, got %T", name, v)
		}
		acc = fn(acc, f)
	}
	return acc, nil
}
