package vm

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/transvm/pkg/core"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// BuiltinFunc implements a builtin operation. Arguments arrive in push order.
type BuiltinFunc func(args []any) (any, error)

// Builtin is a named operation invoked by the builtin opcode.
type Builtin struct {
	Name  string
	Arity int
	Fn    BuiltinFunc
}

func defaultBuiltins() map[string]Builtin {
	list := []Builtin{
		{"eq", 2, func(a []any) (any, error) { return valuesEqual(a[0], a[1]), nil }},
		{"ne", 2, func(a []any) (any, error) { return !valuesEqual(a[0], a[1]), nil }},
		{"lt", 2, func(a []any) (any, error) { return compare(a[0], a[1], func(c int) bool { return c < 0 }) }},
		{"gt", 2, func(a []any) (any, error) { return compare(a[0], a[1], func(c int) bool { return c > 0 }) }},
		{"not", 1, func(a []any) (any, error) {
			b, err := asBool(a[0])
			return !b, err
		}},
		{"and", 2, func(a []any) (any, error) { return logical(a, func(x, y bool) bool { return x && y }) }},
		{"or", 2, func(a []any) (any, error) { return logical(a, func(x, y bool) bool { return x || y }) }},
		{"add", 2, func(a []any) (any, error) { return arith(a[0], a[1], "+") }},
		{"sub", 2, func(a []any) (any, error) { return arith(a[0], a[1], "-") }},
		{"concat", 2, concat},
		{"size", 1, func(a []any) (any, error) { return size(a[0]) }},
		{"isEmpty", 1, func(a []any) (any, error) {
			n, err := size(a[0])
			return n == 0, err
		}},
		{"first", 1, func(a []any) (any, error) {
			list, err := asList(a[0])
			if err != nil || len(list) == 0 {
				return nil, err
			}
			return list[0], nil
		}},
		{"includes", 2, func(a []any) (any, error) {
			list, err := asList(a[0])
			if err != nil {
				return nil, err
			}
			for _, item := range list {
				if valuesEqual(item, a[1]) {
					return true, nil
				}
			}
			return false, nil
		}},
		{"append", 2, func(a []any) (any, error) {
			list, err := asList(a[0])
			if err != nil {
				return nil, err
			}
			out := make([]any, len(list), len(list)+1)
			copy(out, list)
			return append(out, a[1]), nil
		}},
		{"toString", 1, func(a []any) (any, error) { return FormatValue(a[0]), nil }},
		{"toUpper", 1, func(a []any) (any, error) {
			s, err := asString(a[0])
			return cases.Upper(language.Und).String(s), err
		}},
		{"toLower", 1, func(a []any) (any, error) {
			s, err := asString(a[0])
			return cases.Lower(language.Und).String(s), err
		}},
		{"typeOf", 1, func(a []any) (any, error) { return TypeOf(a[0]), nil }},
	}
	m := make(map[string]Builtin, len(list))
	for _, b := range list {
		m[b.Name] = b
	}
	return m
}

// BuiltinNames returns the names of the default builtins, sorted.
func BuiltinNames() []string {
	m := defaultBuiltins()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeOf names the runtime type of a value.
func TypeOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "Null"
	case string:
		return "String"
	case int64:
		return "Integer"
	case float64:
		return "Real"
	case bool:
		return "Boolean"
	case []any:
		return "Sequence"
	case core.Element:
		return x.Type()
	case core.Model:
		return "Model"
	}
	return fmt.Sprintf("%T", v)
}

// FormatValue renders a value for logging and toString.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case core.Element:
		return x.Type() + "#" + x.ID()
	case core.Model:
		return "model " + x.Name()
	}
	return fmt.Sprint(v)
}

func valuesEqual(a, b any) bool {
	if x, y, ok := numbers(a, b); ok {
		return x == y
	}
	la, aList := a.([]any)
	lb, bList := b.([]any)
	if aList || bList {
		if !aList || !bList || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !valuesEqual(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	switch a.(type) {
	case nil, string, bool, core.Element, core.Model:
		return a == b
	}
	return false
}

// numbers converts a pair of numeric operands to float64.
func numbers(a, b any) (float64, float64, bool) {
	x, ok := toFloat(a)
	if !ok {
		return 0, 0, false
	}
	y, ok := toFloat(b)
	if !ok {
		return 0, 0, false
	}
	return x, y, true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func compare(a, b any, pred func(int) bool) (any, error) {
	if x, y, ok := numbers(a, b); ok {
		switch {
		case x < y:
			return pred(-1), nil
		case x > y:
			return pred(1), nil
		}
		return pred(0), nil
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return pred(strings.Compare(sa, sb)), nil
	}
	return nil, fmt.Errorf("cannot compare %s with %s", TypeOf(a), TypeOf(b))
}

func logical(a []any, fn func(x, y bool) bool) (any, error) {
	x, err := asBool(a[0])
	if err != nil {
		return nil, err
	}
	y, err := asBool(a[1])
	if err != nil {
		return nil, err
	}
	return fn(x, y), nil
}

func arith(a, b any, op string) (any, error) {
	ia, okA := a.(int64)
	ib, okB := b.(int64)
	if okA && okB {
		if op == "+" {
			return ia + ib, nil
		}
		return ia - ib, nil
	}
	x, y, ok := numbers(a, b)
	if !ok {
		return nil, fmt.Errorf("cannot apply %s to %s and %s", op, TypeOf(a), TypeOf(b))
	}
	if op == "+" {
		return x + y, nil
	}
	return x - y, nil
}

func concat(a []any) (any, error) {
	if sa, ok := a[0].(string); ok {
		sb, err := asString(a[1])
		if err != nil {
			return nil, err
		}
		return sa + sb, nil
	}
	la, err := asList(a[0])
	if err != nil {
		return nil, fmt.Errorf("cannot concat %s", TypeOf(a[0]))
	}
	lb, err := asList(a[1])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(la)+len(lb))
	return append(append(out, la...), lb...), nil
}

func size(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		return int64(utf8.RuneCountInString(x)), nil
	case []any:
		return int64(len(x)), nil
	}
	return 0, fmt.Errorf("%s has no size", TypeOf(v))
}

var errNotBool = errors.New("not a Boolean")

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s", errNotBool, TypeOf(v))
	}
	return b, nil
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected String, got %s", TypeOf(v))
	}
	return s, nil
}

// asList accepts sequences and null, which is the empty sequence.
func asList(v any) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return x, nil
	}
	return nil, fmt.Errorf("expected Sequence, got %s", TypeOf(v))
}
