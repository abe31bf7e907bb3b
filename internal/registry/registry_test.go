package registry

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/transvm/internal/modelstore"
	"github.com/leapstack-labs/transvm/internal/testutil"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstBindingWins(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(t)
	r := New(logger)

	m1 := modelstore.NewModel("a", "MM", false)
	m2 := modelstore.NewModel("b", "MM", false)

	assert.True(t, r.Bind("IN", m1, core.RoleIn))
	assert.False(t, r.Bind("IN", m2, core.RoleIn))

	b, err := r.Resolve("IN")
	require.NoError(t, err)
	assert.Same(t, m1, b.Model)
	assert.Equal(t, "MM", b.ReferenceModel)

	require.Len(t, rec.Warnings(), 1)
	assert.Contains(t, rec.Warnings()[0], "already bound")
	assert.Equal(t, "IN", rec.Entries()[0].Attrs["model"])
}

func TestRegistry_LibraryFirstBindingWins(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(t)
	r := New(logger)

	l1 := core.NewModule("L1", "", nil, nil, nil, nil)
	l2 := core.NewModule("L2", "", nil, nil, nil, nil)

	assert.True(t, r.BindLibrary("util", l1))
	assert.False(t, r.BindLibrary("util", l2))

	got, err := r.Library("util")
	require.NoError(t, err)
	assert.Same(t, l1, got)
	assert.Len(t, rec.Warnings(), 1)

	_, err = r.Library("missing")
	var bf *core.BindFault
	require.ErrorAs(t, err, &bf)
	assert.Equal(t, []string{"missing"}, bf.Names)
}

func TestRegistry_Resolve_Unbound(t *testing.T) {
	r := New(nil)
	_, err := r.Resolve("OUT")

	var bf *core.BindFault
	require.True(t, errors.As(err, &bf))
	assert.Equal(t, core.FaultBind, bf.Kind())
}

func TestRegistry_Require(t *testing.T) {
	in := modelstore.NewModel("in", "Families", false)
	out := modelstore.NewModel("out", "Persons", true)

	tests := []struct {
		name      string
		bind      func(r *Registry)
		params    []core.Parameter
		libraries []string
		wantNames []string
		wantMsg   string
	}{
		{
			name: "all bound",
			bind: func(r *Registry) {
				r.Bind("IN", in, core.RoleIn)
				r.Bind("OUT", out, core.RoleOut)
				r.BindLibrary("util", &core.Module{Name: "util"})
			},
			params: []core.Parameter{
				{Name: "IN", Role: core.RoleIn, Metamodel: "Families"},
				{Name: "OUT", Role: core.RoleOut, Metamodel: "Persons"},
			},
			libraries: []string{"util"},
		},
		{
			name: "every missing name is listed",
			bind: func(r *Registry) {
				r.Bind("IN", in, core.RoleIn)
			},
			params: []core.Parameter{
				{Name: "IN", Role: core.RoleIn},
				{Name: "OUT", Role: core.RoleOut},
				{Name: "TRACE", Role: core.RoleOut},
			},
			libraries: []string{"util"},
			wantNames: []string{"OUT", "TRACE", "util"},
			wantMsg:   "unresolved",
		},
		{
			name: "reference model mismatch",
			bind: func(r *Registry) {
				r.Bind("IN", in, core.RoleIn)
			},
			params:    []core.Parameter{{Name: "IN", Role: core.RoleIn, Metamodel: "Persons"}},
			wantNames: []string{"IN"},
			wantMsg:   "reference model mismatch",
		},
		{
			name: "in parameter accepts inout binding",
			bind: func(r *Registry) {
				r.Bind("IN", in, core.RoleInOut)
			},
			params: []core.Parameter{{Name: "IN", Role: core.RoleIn}},
		},
		{
			name: "out parameter rejects in binding",
			bind: func(r *Registry) {
				r.Bind("OUT", out, core.RoleIn)
			},
			params:    []core.Parameter{{Name: "OUT", Role: core.RoleOut}},
			wantNames: []string{"OUT"},
			wantMsg:   "role mismatch",
		},
		{
			name: "inout parameter rejects out binding",
			bind: func(r *Registry) {
				r.Bind("X", out, core.RoleOut)
			},
			params:    []core.Parameter{{Name: "X", Role: core.RoleInOut}},
			wantNames: []string{"X"},
			wantMsg:   "role mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testutil.NewTestLogger(t))
			tt.bind(r)

			err := r.Require(tt.params, tt.libraries)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			var bf *core.BindFault
			require.ErrorAs(t, err, &bf)
			assert.Equal(t, tt.wantNames, bf.Names)
			assert.Contains(t, bf.Error(), tt.wantMsg)
		})
	}
}

func TestRegistry_RolesAndTargets(t *testing.T) {
	r := New(nil)
	in := modelstore.NewModel("in", "MM", false)
	out := modelstore.NewModel("out", "MM", true)
	io := modelstore.NewModel("io", "MM", true)

	r.Bind("IN", in, core.RoleIn)
	r.Bind("OUT", out, core.RoleOut)
	r.Bind("IO", io, core.RoleInOut)
	r.BindLibrary("b", &core.Module{Name: "b"})
	r.BindLibrary("a", &core.Module{Name: "a"})

	role, ok := r.RoleOf(in)
	require.True(t, ok)
	assert.Equal(t, core.RoleIn, role)

	role, ok = r.RoleOf(io)
	require.True(t, ok)
	assert.Equal(t, core.RoleInOut, role)

	_, ok = r.RoleOf(modelstore.NewModel("stranger", "MM", true))
	assert.False(t, ok)
	_, ok = r.RoleOf(nil)
	assert.False(t, ok)

	targets := r.Targets()
	assert.Len(t, targets, 2)
	assert.Same(t, out, targets["OUT"])
	assert.Same(t, io, targets["IO"])

	bindings := r.Bindings()
	require.Len(t, bindings, 3)
	assert.Equal(t, "IN", bindings[0].Name)
	assert.Equal(t, "IO", bindings[2].Name)

	assert.Equal(t, []string{"a", "b"}, r.Libraries())
}

func TestRegistry_ReferenceModelExtent(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(t)
	r := New(logger)

	in := modelstore.NewModel("in", "MM", true)
	out := modelstore.NewModel("out", "MM", true)
	a1, err := in.NewElement("A")
	require.NoError(t, err)
	a2, err := out.NewElement("A")
	require.NoError(t, err)
	_, err = out.NewElement("B")
	require.NoError(t, err)

	r.Bind("IN", in, core.RoleIn)
	r.Bind("OUT", out, core.RoleOut)
	assert.True(t, r.BindReferenceModel("MM", "IN"))
	assert.False(t, r.BindReferenceModel("MM", "OUT"), "first registration wins")
	assert.False(t, r.BindReferenceModel("MM", "OUT"))
	assert.False(t, r.BindReferenceModel("", "IN"))
	assert.False(t, r.BindReferenceModel("IN", "OUT"), "model names are not shadowed")
	assert.Equal(t, []string{"MM"}, r.ReferenceModels())
	require.Len(t, rec.Warnings(), 1)

	b, err := r.Resolve("MM")
	require.NoError(t, err)
	assert.Equal(t, core.RoleIn, b.Role)
	assert.False(t, b.Model.IsTarget())
	assert.Equal(t, "MM", b.Model.Name())

	as, err := b.Model.ElementsOf("A")
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Same(t, a1, as[0])
	assert.Same(t, a2, as[1])

	_, err = b.Model.NewElement("A")
	require.ErrorContains(t, err, "reference model MM is read-only")

	role, ok := r.RoleOf(as[1].Model())
	require.True(t, ok)
	assert.Equal(t, core.RoleOut, role, "elements keep the role of their own model")
}
