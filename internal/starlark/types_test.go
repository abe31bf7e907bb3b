package starlark

import (
	"testing"

	"github.com/leapstack-labs/transvm/internal/modelstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantStr string
		wantErr bool
	}{
		{name: "string", input: "hello", wantStr: `"hello"`},
		{name: "int", input: 42, wantStr: "42"},
		{name: "int64", input: int64(123456789), wantStr: "123456789"},
		{name: "float64", input: 3.5, wantStr: "3.5"},
		{name: "bool", input: true, wantStr: "True"},
		{name: "nil", input: nil, wantStr: "None"},
		{name: "list", input: []any{"a", int64(1), nil}, wantStr: `["a", 1, None]`},
		{name: "map", input: map[string]any{}, wantErr: true},
		{name: "nested unsupported", input: []any{struct{}{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToStarlark(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStr, got.String())
		})
	}
}

func TestToGo(t *testing.T) {
	big := starlark.MakeInt64(1 << 62).Mul(starlark.MakeInt(8))
	tests := []struct {
		name    string
		input   starlark.Value
		want    any
		wantErr bool
	}{
		{name: "none", input: starlark.None, want: nil},
		{name: "string", input: starlark.String("x"), want: "x"},
		{name: "int", input: starlark.MakeInt(7), want: int64(7)},
		{name: "float", input: starlark.Float(1.5), want: 1.5},
		{name: "bool", input: starlark.False, want: false},
		{name: "list", input: starlark.NewList([]starlark.Value{starlark.MakeInt(1)}), want: []any{int64(1)}},
		{name: "tuple", input: starlark.Tuple{starlark.String("a")}, want: []any{"a"}},
		{name: "big int", input: big, wantErr: true},
		{name: "dict", input: starlark.NewDict(0), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestElementAndModelValues(t *testing.T) {
	m := modelstore.NewModel("people", "Persons", true)
	e, err := m.NewElement("Person")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", "Ada"))

	sv, err := ToStarlark(e)
	require.NoError(t, err)
	el, ok := sv.(Element)
	require.True(t, ok)
	assert.Equal(t, "Person#e1", el.String())
	assert.Equal(t, []string{"name"}, el.AttrNames())

	name, err := el.Attr("name")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("Ada"), name)
	unset, err := el.Attr("age")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, unset)

	back, err := ToGo(sv)
	require.NoError(t, err)
	assert.Same(t, e, back)

	mv, err := ToStarlark(m)
	require.NoError(t, err)
	mm, err := mv.(Model).Attr("metamodel")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("Persons"), mm)
	back, err = ToGo(mv)
	require.NoError(t, err)
	assert.Same(t, m, back)
}
