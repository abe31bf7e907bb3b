package starlark

import (
	"fmt"

	"github.com/leapstack-labs/transvm/pkg/core"
	"go.starlark.net/starlark"
)

// featureLister is implemented by elements that can enumerate their set
// features.
type featureLister interface {
	Features() []string
}

// Element exposes a model element to scripts. Attributes read features;
// scripts cannot modify elements.
type Element struct {
	e core.Element
}

var _ starlark.HasAttrs = Element{}

func (v Element) String() string       { return v.e.Type() + "#" + v.e.ID() }
func (v Element) Type() string         { return "element" }
func (v Element) Freeze()              {}
func (v Element) Truth() starlark.Bool { return starlark.True }

func (v Element) Hash() (uint32, error) {
	return starlark.String(v.e.Model().Name() + "/" + v.e.ID()).Hash()
}

// Attr returns the value of a feature; unset features are None.
func (v Element) Attr(name string) (starlark.Value, error) {
	val, err := v.e.Get(name)
	if err != nil {
		return nil, err
	}
	return ToStarlark(val)
}

func (v Element) AttrNames() []string {
	if fl, ok := v.e.(featureLister); ok {
		return fl.Features()
	}
	return nil
}

// Model exposes a model handle to scripts.
type Model struct {
	m core.Model
}

var _ starlark.HasAttrs = Model{}

func (v Model) String() string        { return "model " + v.m.Name() }
func (v Model) Type() string          { return "model" }
func (v Model) Freeze()               {}
func (v Model) Truth() starlark.Bool  { return starlark.True }
func (v Model) Hash() (uint32, error) { return starlark.String(v.m.Name()).Hash() }

func (v Model) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.m.Name()), nil
	case "metamodel":
		return starlark.String(v.m.ReferenceModel()), nil
	}
	return nil, nil
}

func (v Model) AttrNames() []string { return []string{"metamodel", "name"} }

// ToStarlark converts a VM value to a Starlark value.
// Supported types: nil, string, int, int64, float64, bool, []any,
// core.Element and core.Model.
func ToStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case bool:
		return starlark.Bool(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := ToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case core.Element:
		return Element{e: val}, nil
	case core.Model:
		return Model{m: val}, nil
	}
	return nil, fmt.Errorf("unsupported type: %T", v)
}

// ToGo converts a Starlark value back to a VM value.
// Returns: nil, string, int64, float64, bool, []any, core.Element or
// core.Model.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s out of range", val)
		}
		return i64, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Indexable:
		// lists and tuples
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil
	case Element:
		return val.e, nil
	case Model:
		return val.m, nil
	}
	return nil, fmt.Errorf("cannot return %s value to the VM", v.Type())
}
