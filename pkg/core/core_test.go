package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpcodeTable(t *testing.T) {
	for op := OpNop; op < opcodeCount; op++ {
		name := op.String()
		require.NotEmpty(t, name, "opcode %d has no mnemonic", op)
		got, ok := LookupOpcode(name)
		require.True(t, ok, name)
		assert.Equal(t, op, got)
	}

	assert.Len(t, Mnemonics(), int(opcodeCount)-1)
	assert.False(t, OpInvalid.Valid())
	assert.Equal(t, "Opcode(200)", Opcode(200).String())
	assert.Equal(t, opTable[OpInvalid], Opcode(200).Info())

	_, ok := LookupOpcode("invalid")
	assert.False(t, ok, "invalid is not a mnemonic")
}

func TestOperation(t *testing.T) {
	tests := []struct {
		name       string
		op         Operation
		want       string
		pops, push int
	}{
		{
			name: "fixed stack effect",
			op:   Operation{Code: OpSet, Args: []Arg{{Kind: ArgFeature, Text: "x"}}},
			want: "set x", pops: 2,
		},
		{
			name: "counted call",
			op: Operation{Code: OpCall, Label: "again", Args: []Arg{
				{Kind: ArgCallee, Text: "strings.shout"},
				{Kind: ArgCount, Text: "3", Int: 3},
			}},
			want: "again: call strings.shout 3", pops: 3, push: 1,
		},
		{
			name: "string literal",
			op:   Operation{Code: OpPush, Args: []Arg{{Kind: ArgString, Text: "a b"}}},
			want: `push "a b"`, push: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
			pops, pushes := tt.op.StackEffect()
			assert.Equal(t, tt.pops, pops)
			assert.Equal(t, tt.push, pushes)
		})
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "", want: RoleIn},
		{in: "IN", want: RoleIn},
		{in: "out", want: RoleOut},
		{in: "InOut", want: RoleInOut},
		{in: "both", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid model role")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, RoleIn.Accepts(RoleInOut))
	assert.False(t, RoleIn.Accepts(RoleOut))
	assert.True(t, RoleOut.Accepts(RoleInOut))
	assert.False(t, RoleInOut.Accepts(RoleOut))
	assert.False(t, RoleIn.Writable())
	assert.True(t, RoleInOut.Writable())
}

func TestModuleLookups(t *testing.T) {
	main := &Block{Name: "main"}
	m := NewModule("M", "", []Parameter{{Name: "IN", Role: RoleIn}}, []string{"strings"}, nil, []*Block{main})

	assert.Equal(t, DefaultEntry, m.Entry)
	b, ok := m.Block("main")
	require.True(t, ok)
	assert.Same(t, main, b)
	_, ok = m.Block("other")
	assert.False(t, ok)

	p, ok := m.Parameter("IN")
	require.True(t, ok)
	assert.Equal(t, RoleIn, p.Role)
	assert.True(t, m.DeclaresLibrary("strings"))
	assert.False(t, m.DeclaresLibrary("math"))

	unindexed := &Module{Blocks: []*Block{main}}
	b, ok = unindexed.Block("main")
	require.True(t, ok)
	assert.Same(t, main, b)
}

func TestSplitCallee(t *testing.T) {
	tests := []struct {
		callee, lib, name string
	}{
		{"helper", "", "helper"},
		{"strings.shout", "strings", "shout"},
		{".odd", "", ".odd"},
	}
	for _, tt := range tests {
		lib, name := SplitCallee(tt.callee)
		assert.Equal(t, tt.lib, lib, tt.callee)
		assert.Equal(t, tt.name, name, tt.callee)
	}
}

func TestFaults(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name  string
		fault Fault
		kind  FaultKind
		want  string
	}{
		{
			name:  "load",
			fault: &LoadFault{Module: "M", Block: "main", Index: 2, Pos: "m.yaml:4:9", Msg: "bad op"},
			kind:  FaultLoad,
			want:  "load fault in module M, block main[2] (m.yaml:4:9): bad op",
		},
		{
			name:  "link with overlay",
			fault: &LinkFault{Module: "M", Overlay: "O", Msg: "collision"},
			kind:  FaultLink,
			want:  "link fault in module M (overlay O): collision",
		},
		{
			name:  "bind",
			fault: &BindFault{Names: []string{"IN", "OUT"}, Msg: "unbound models"},
			kind:  FaultBind,
			want:  "bind fault: unbound models: IN, OUT",
		},
		{
			name:  "execution",
			fault: &ExecutionFault{Module: "M", Block: "main", Index: 0, Op: "get x", Msg: "not an element", Err: cause},
			kind:  FaultExecution,
			want:  `execution fault at main[0] in M executing "get x": not an element: boom`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.fault.Kind())
			assert.Equal(t, tt.want, tt.fault.Error())

			res := &RunResult{Status: RunStatusFailed, Fault: fmt.Errorf("launch: %w", tt.fault)}
			assert.Equal(t, tt.kind, res.FaultKind())
		})
	}

	assert.ErrorIs(t, &ExecutionFault{Err: cause}, cause)
	assert.Equal(t, FaultKind(""), (&RunResult{Status: RunStatusCompleted}).FaultKind())
	assert.Equal(t, FaultExecution, (&RunResult{Fault: cause}).FaultKind())
}

func TestOptions(t *testing.T) {
	assert.Equal(t, RunModeRun, ParseRunMode(""))
	assert.Equal(t, RunModeDebug, ParseRunMode(" Debug "))

	opts := Options{Extensions: map[string]any{"trace": true}}
	v, ok := opts.Extension("trace")
	assert.True(t, ok)
	assert.Equal(t, true, v)
	_, ok = opts.Extension("missing")
	assert.False(t, ok)

	var mon Monitor = NullMonitor{}
	mon.Worked(3)
	mon.Done()
	assert.False(t, mon.Canceled())
}
