package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultEntry is the entry block name used when a module does not declare one.
const DefaultEntry = "main"

// Arg is a typed operation argument. Text always holds the source token;
// Int and Float are populated for numeric kinds.
type Arg struct {
	Kind  ArgKind
	Text  string
	Int   int64
	Float float64
}

func (a Arg) String() string {
	if a.Kind == ArgString {
		return strconv.Quote(a.Text)
	}
	return a.Text
}

// Operation is a single loaded instruction.
type Operation struct {
	Code  Opcode
	Args  []Arg
	Label string // optional jump label attached to this operation
	Pos   string // source position for diagnostics
}

// StackEffect returns how many operands the operation pops and pushes.
func (o Operation) StackEffect() (pops, pushes int) {
	info := o.Code.Info()
	pops = info.Pops
	if info.CountArg >= 0 && info.CountArg < len(o.Args) {
		pops = int(o.Args[info.CountArg].Int)
	}
	return pops, info.Pushes
}

func (o Operation) String() string {
	var b strings.Builder
	if o.Label != "" {
		b.WriteString(o.Label)
		b.WriteString(": ")
	}
	b.WriteString(o.Code.String())
	for _, a := range o.Args {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	return b.String()
}

// Block is a named, ordered sequence of operations.
type Block struct {
	Name   string
	Params []string
	Ops    []Operation
	Labels map[string]int
}

// Label returns the operation index a label points at.
func (b *Block) Label(name string) (int, bool) {
	i, ok := b.Labels[name]
	return i, ok
}

// Role is the access role of a bound model.
type Role string

// Model roles.
const (
	RoleIn    Role = "in"
	RoleOut   Role = "out"
	RoleInOut Role = "inout"
)

// ParseRole validates a role name. The empty string means RoleIn.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case "", RoleIn:
		return RoleIn, nil
	case RoleOut:
		return RoleOut, nil
	case RoleInOut:
		return RoleInOut, nil
	}
	return "", fmt.Errorf("invalid model role %q (want in, out or inout)", s)
}

// Writable reports whether operations may mutate a model bound with this role.
func (r Role) Writable() bool { return r == RoleOut || r == RoleInOut }

// Accepts reports whether a model bound with role bound satisfies a
// parameter declared with role r.
func (r Role) Accepts(bound Role) bool {
	switch r {
	case RoleIn:
		return bound == RoleIn || bound == RoleInOut
	case RoleOut:
		return bound == RoleOut || bound == RoleInOut
	case RoleInOut:
		return bound == RoleInOut
	}
	return false
}

// Parameter is a model a module requires to be bound before it can run.
type Parameter struct {
	Name      string
	Role      Role
	Metamodel string // reference-model identity; empty accepts any
}

// NativeFunc is a host-implemented library function.
type NativeFunc func(ctx context.Context, args []any) (any, error)

// Module is a loaded, immutable unit of transformation bytecode.
type Module struct {
	Name       string
	Entry      string
	Parameters []Parameter
	Libraries  []string
	Externals  []string
	Blocks     []*Block

	// Natives holds host functions exposed by script libraries.
	Natives map[string]NativeFunc

	index map[string]*Block
}

// NewModule builds a module and indexes its blocks by name.
func NewModule(name, entry string, params []Parameter, libs, externals []string, blocks []*Block) *Module {
	if entry == "" {
		entry = DefaultEntry
	}
	m := &Module{
		Name:       name,
		Entry:      entry,
		Parameters: params,
		Libraries:  libs,
		Externals:  externals,
		Blocks:     blocks,
		index:      make(map[string]*Block, len(blocks)),
	}
	for _, b := range blocks {
		m.index[b.Name] = b
	}
	return m
}

// Block looks up a block by name.
func (m *Module) Block(name string) (*Block, bool) {
	if m.index == nil {
		for _, b := range m.Blocks {
			if b.Name == name {
				return b, true
			}
		}
		return nil, false
	}
	b, ok := m.index[name]
	return b, ok
}

// Native looks up a host function by name.
func (m *Module) Native(name string) (NativeFunc, bool) {
	fn, ok := m.Natives[name]
	return fn, ok
}

// Parameter looks up a declared model parameter.
func (m *Module) Parameter(name string) (Parameter, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// DeclaresLibrary reports whether name is a declared library.
func (m *Module) DeclaresLibrary(name string) bool {
	for _, l := range m.Libraries {
		if l == name {
			return true
		}
	}
	return false
}

// EffectiveModule is the merged, runnable result of linking a main module
// with its overlays.
type EffectiveModule struct {
	Name       string
	Entry      string
	Parameters []Parameter
	Libraries  []string
	Blocks     map[string]*Block
	Order      []string
	Origins    map[string]string
}

// Block looks up a block by name.
func (e *EffectiveModule) Block(name string) (*Block, bool) {
	b, ok := e.Blocks[name]
	return b, ok
}

// SplitCallee splits a "lib.name" callee into its library and member parts.
// Unqualified callees return an empty library.
func SplitCallee(callee string) (lib, name string) {
	if i := strings.IndexByte(callee, '.'); i > 0 {
		return callee[:i], callee[i+1:]
	}
	return "", callee
}
