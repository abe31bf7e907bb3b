package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const copyModule = `
module: CopyX
models:
  - {name: IN, metamodel: MM, role: in}
  - {name: OUT, metamodel: MM, role: out}
libraries: [strings]
externals: [helper]
blocks:
  - name: main
    ops:
      - allof A IN
      - iterate done
      - body: store a
      - new A OUT
      - store b
      - load b
      - load a
      - get x
      - set x
      - enditerate
      - done: pushnull
      - ret
  - name: helper
    params: [v]
    ops:
      - load v
      - ret
`

func TestLoad_CompactAndMappingForms(t *testing.T) {
	src := `
module: Forms
models:
  - {name: OUT, metamodel: MM, role: out}
blocks:
  - name: main
    ops:
      - push "hello world"
      - {op: pushi, args: ["-42"], pos: "9:1-9:20"}
      - pushd 2.5
      - "start: nop"
      - {op: goto, args: [start], label: again}
      - call f 2
  - name: f
    params: [a, b]
    ops:
      - load a
`
	m, err := Load(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "Forms", m.Name)
	assert.Equal(t, core.DefaultEntry, m.Entry)
	require.Len(t, m.Blocks, 2)

	main, ok := m.Block("main")
	require.True(t, ok)
	require.Len(t, main.Ops, 6)

	assert.Equal(t, core.OpPush, main.Ops[0].Code)
	assert.Equal(t, "hello world", main.Ops[0].Args[0].Text)
	assert.Equal(t, "8:9", main.Ops[0].Pos)

	assert.Equal(t, core.OpPushInt, main.Ops[1].Code)
	assert.Equal(t, int64(-42), main.Ops[1].Args[0].Int)
	assert.Equal(t, "9:1-9:20", main.Ops[1].Pos)

	assert.InDelta(t, 2.5, main.Ops[2].Args[0].Float, 0)

	assert.Equal(t, "start", main.Ops[3].Label)
	assert.Equal(t, "again", main.Ops[4].Label)
	idx, ok := main.Label("start")
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	assert.Equal(t, core.OpCall, main.Ops[5].Code)
	assert.Equal(t, int64(2), main.Ops[5].Args[1].Int)
}

func TestLoad_LabelledMappingForm(t *testing.T) {
	m, err := Load(strings.NewReader(copyModule))
	require.NoError(t, err)

	main, ok := m.Block("main")
	require.True(t, ok)
	assert.Equal(t, "body", main.Ops[2].Label)
	assert.Equal(t, core.OpStore, main.Ops[2].Code)
	assert.Equal(t, "done", main.Ops[10].Label)

	assert.Equal(t, []string{"strings"}, m.Libraries)
	assert.Equal(t, []string{"helper"}, m.Externals)
	in, ok := m.Parameter("IN")
	require.True(t, ok)
	assert.Equal(t, core.RoleIn, in.Role)
	assert.Equal(t, "MM", in.Metamodel)
}

func TestLoad_JSONSubset(t *testing.T) {
	src := `{"module": "J", "entry": "go", "blocks": [{"name": "go", "ops": ["pusht", "log"]}]}`
	m, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "go", m.Entry)
	blk, ok := m.Block("go")
	require.True(t, ok)
	assert.Len(t, blk.Ops, 2)
}

func TestLoad_MetamodelAsModelArgument(t *testing.T) {
	src := "module: M\nmodels:\n  - {name: IN, metamodel: MM}\nblocks:\n  - name: main\n    ops: [allof A MM, model MM]\n"
	m, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	main, _ := m.Block("main")
	assert.Equal(t, "MM", main.Ops[0].Args[1].Text)

	_, err = Load(strings.NewReader(strings.Replace(src, "allof A MM", "allof A Other", 1)))
	require.ErrorContains(t, err, `model "Other" is not declared`)
}

func TestLoad_Faults(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{
			name:    "empty document",
			src:     "",
			wantMsg: "empty module encoding",
		},
		{
			name:    "missing module name",
			src:     "blocks: []",
			wantMsg: "module name is required",
		},
		{
			name:    "unknown top-level field",
			src:     "module: M\nbogus: 1",
			wantMsg: "malformed module encoding",
		},
		{
			name:    "unknown opcode",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [frobnicate]",
			wantMsg: `unknown opcode "frobnicate"`,
		},
		{
			name:    "arity mismatch",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [push]",
			wantMsg: "push takes 1 argument(s), got 0",
		},
		{
			name:    "too many arguments",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [pop 1]",
			wantMsg: "pop takes 0 argument(s), got 1",
		},
		{
			name:    "bad integer",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [pushi ten]",
			wantMsg: `invalid integer "ten"`,
		},
		{
			name:    "negative count",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [\"builtin not -1\"]",
			wantMsg: "invalid argument count",
		},
		{
			name:    "duplicate block",
			src:     "module: M\nblocks:\n  - {name: main}\n  - {name: main}",
			wantMsg: "duplicate block",
		},
		{
			name:    "duplicate model",
			src:     "module: M\nmodels:\n  - {name: IN}\n  - {name: IN}",
			wantMsg: `duplicate model parameter "IN"`,
		},
		{
			name:    "duplicate library",
			src:     "module: M\nlibraries: [a, a]",
			wantMsg: `duplicate library "a"`,
		},
		{
			name:    "duplicate block parameter",
			src:     "module: M\nblocks:\n  - {name: f, params: [x, x]}",
			wantMsg: `duplicate block parameter "x"`,
		},
		{
			name:    "duplicate label",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [\"a: nop\", \"a: nop\"]",
			wantMsg: `duplicate label "a"`,
		},
		{
			name:    "invalid role",
			src:     "module: M\nmodels:\n  - {name: IN, role: sideways}",
			wantMsg: "invalid model role",
		},
		{
			name:    "unknown label",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [goto nowhere]",
			wantMsg: `label "nowhere" is not defined`,
		},
		{
			name:    "undeclared model",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [model IN]",
			wantMsg: `model "IN" is not declared`,
		},
		{
			name:    "dangling callee",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [call nothing 0]",
			wantMsg: `dangling reference "nothing"`,
		},
		{
			name:    "undeclared library callee",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [call strings.upper 1]",
			wantMsg: `library "strings" is not declared`,
		},
		{
			name:    "call count mismatch",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [call f 1]\n  - {name: f, params: [a, b]}",
			wantMsg: "call f passes 1 argument(s), block takes 2",
		},
		{
			name:    "unterminated string",
			src:     "module: M\nblocks:\n  - name: main\n    ops: ['push \"abc']",
			wantMsg: "unterminated string",
		},
		{
			name:    "unknown operation field",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [{op: nop, extra: 1}]",
			wantMsg: `unknown operation field "extra"`,
		},
		{
			name:    "label without operation",
			src:     "module: M\nblocks:\n  - name: main\n    ops: [\"end:\"]",
			wantMsg: `label "end" has no operation`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Nil(t, m, "loading must be all-or-nothing")

			var lf *core.LoadFault
			require.True(t, errors.As(err, &lf), "want LoadFault, got %T", err)
			assert.Equal(t, core.FaultLoad, lf.Kind())
			assert.Contains(t, lf.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_FaultLocation(t *testing.T) {
	src := "module: M\nblocks:\n  - name: main\n    ops:\n      - nop\n      - push\n"
	_, err := Load(strings.NewReader(src))

	var lf *core.LoadFault
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, "M", lf.Module)
	assert.Equal(t, "main", lf.Block)
	assert.Equal(t, 1, lf.Index)
	assert.Equal(t, "6:9", lf.Pos)
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"copy.yaml": {Data: []byte(copyModule)},
		"bad.yaml":  {Data: []byte("module: Bad\nblocks:\n  - name: main\n    ops: [push]")},
	}

	m, err := LoadFS(fsys, "copy.yaml")
	require.NoError(t, err)
	assert.Equal(t, "CopyX", m.Name)

	_, err = LoadFS(fsys, "bad.yaml")
	var lf *core.LoadFault
	require.ErrorAs(t, err, &lf)
	assert.True(t, strings.HasPrefix(lf.Pos, "bad.yaml:"), "pos %q", lf.Pos)

	_, err = LoadFS(fsys, "missing.yaml")
	require.ErrorAs(t, err, &lf)
	assert.Equal(t, "cannot open module", lf.Msg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(copyModule), 0o600))

	m, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Blocks, 2)
}

func TestSplitOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "nop", want: []string{"nop"}},
		{in: "  push   x  ", want: []string{"push", "x"}},
		{in: `push "a \"b\" c"`, want: []string{"push", `a "b" c`}},
		{in: `push "tab\there"`, want: []string{"push", "tab\there"}},
		{in: `push ""`, want: []string{"push", ""}},
		{in: `push "open`, wantErr: true},
		{in: `push ab"c`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			tokens, err := splitOperation(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			got := make([]string, len(tokens))
			for i, tok := range tokens {
				got[i] = tok.text
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
