package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// builder turns a decoded document into a module, stopping at the first fault.
type builder struct {
	doc     *moduleDoc
	params  map[string]core.Parameter
	libs    map[string]bool
	externs map[string]bool
	blocks  map[string]*blockDoc
}

func build(doc *moduleDoc) (*core.Module, error) {
	if strings.TrimSpace(doc.Module) == "" {
		return nil, &core.LoadFault{Index: -1, Msg: "module name is required"}
	}
	b := &builder{
		doc:     doc,
		params:  make(map[string]core.Parameter, len(doc.Models)),
		libs:    make(map[string]bool, len(doc.Libraries)),
		externs: make(map[string]bool, len(doc.Externals)),
		blocks:  make(map[string]*blockDoc, len(doc.Blocks)),
	}

	params := make([]core.Parameter, 0, len(doc.Models))
	for _, pd := range doc.Models {
		if pd.Name == "" {
			return nil, b.fault("", -1, "", "model parameter without a name")
		}
		if _, dup := b.params[pd.Name]; dup {
			return nil, b.fault("", -1, "", fmt.Sprintf("duplicate model parameter %q", pd.Name))
		}
		role, err := core.ParseRole(pd.Role)
		if err != nil {
			return nil, b.fault("", -1, "", fmt.Sprintf("model parameter %q: %v", pd.Name, err))
		}
		p := core.Parameter{Name: pd.Name, Role: role, Metamodel: pd.Metamodel}
		b.params[pd.Name] = p
		params = append(params, p)
	}

	for _, lib := range doc.Libraries {
		if !isName(lib) {
			return nil, b.fault("", -1, "", fmt.Sprintf("invalid library name %q", lib))
		}
		if b.libs[lib] {
			return nil, b.fault("", -1, "", fmt.Sprintf("duplicate library %q", lib))
		}
		b.libs[lib] = true
	}

	for _, ext := range doc.Externals {
		if !isName(ext) {
			return nil, b.fault("", -1, "", fmt.Sprintf("invalid external reference %q", ext))
		}
		if b.externs[ext] {
			return nil, b.fault("", -1, "", fmt.Sprintf("duplicate external reference %q", ext))
		}
		b.externs[ext] = true
	}

	for i := range doc.Blocks {
		bd := &doc.Blocks[i]
		if !isName(bd.Name) {
			return nil, b.fault("", -1, "", fmt.Sprintf("invalid block name %q", bd.Name))
		}
		if _, dup := b.blocks[bd.Name]; dup {
			return nil, b.fault(bd.Name, -1, "", "duplicate block")
		}
		b.blocks[bd.Name] = bd
	}

	blocks := make([]*core.Block, 0, len(doc.Blocks))
	for i := range doc.Blocks {
		blk, err := b.block(&doc.Blocks[i])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}

	return core.NewModule(doc.Module, doc.Entry, params,
		append([]string(nil), doc.Libraries...),
		append([]string(nil), doc.Externals...),
		blocks), nil
}

func (b *builder) block(bd *blockDoc) (*core.Block, error) {
	seen := make(map[string]bool, len(bd.Params))
	for _, p := range bd.Params {
		if p == "" {
			return nil, b.fault(bd.Name, -1, "", "block parameter without a name")
		}
		if seen[p] {
			return nil, b.fault(bd.Name, -1, "", fmt.Sprintf("duplicate block parameter %q", p))
		}
		seen[p] = true
	}

	labels := make(map[string]int)
	for i, od := range bd.Ops {
		if od.Label == "" {
			continue
		}
		if !isName(od.Label) {
			return nil, b.fault(bd.Name, i, od.Pos, fmt.Sprintf("invalid label %q", od.Label))
		}
		if _, dup := labels[od.Label]; dup {
			return nil, b.fault(bd.Name, i, od.Pos, fmt.Sprintf("duplicate label %q", od.Label))
		}
		labels[od.Label] = i
	}

	ops := make([]core.Operation, 0, len(bd.Ops))
	for i, od := range bd.Ops {
		code, ok := core.LookupOpcode(od.Op)
		if !ok {
			return nil, b.fault(bd.Name, i, od.Pos, fmt.Sprintf("unknown opcode %q", od.Op))
		}
		info := code.Info()
		if len(od.Args) != info.Arity() {
			return nil, b.fault(bd.Name, i, od.Pos,
				fmt.Sprintf("%s takes %d argument(s), got %d", info.Name, info.Arity(), len(od.Args)))
		}
		args := make([]core.Arg, len(od.Args))
		for j, text := range od.Args {
			arg, err := b.arg(info.Args[j], text, labels)
			if err != nil {
				return nil, b.fault(bd.Name, i, od.Pos, fmt.Sprintf("%s argument %d: %v", info.Name, j+1, err))
			}
			args[j] = arg
		}
		if code == core.OpCall {
			if err := b.checkCallCount(args[0].Text, args[1].Int); err != nil {
				return nil, b.fault(bd.Name, i, od.Pos, err.Error())
			}
		}
		ops = append(ops, core.Operation{Code: code, Args: args, Label: od.Label, Pos: od.Pos})
	}

	return &core.Block{
		Name:   bd.Name,
		Params: append([]string(nil), bd.Params...),
		Ops:    ops,
		Labels: labels,
	}, nil
}

func (b *builder) arg(kind core.ArgKind, text string, labels map[string]int) (core.Arg, error) {
	a := core.Arg{Kind: kind, Text: text}
	switch kind {
	case core.ArgString:
	case core.ArgInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return a, fmt.Errorf("invalid integer %q", text)
		}
		a.Int = n
	case core.ArgFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return a, fmt.Errorf("invalid number %q", text)
		}
		a.Float = f
	case core.ArgCount:
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil || n < 0 {
			return a, fmt.Errorf("invalid argument count %q", text)
		}
		a.Int = n
	case core.ArgLabel:
		if _, ok := labels[text]; !ok {
			return a, fmt.Errorf("label %q is not defined in this block", text)
		}
	case core.ArgModel:
		if _, ok := b.params[text]; !ok && !b.declaresMetamodel(text) {
			return a, fmt.Errorf("model %q is not declared", text)
		}
	case core.ArgCallee:
		if err := b.checkCallee(text); err != nil {
			return a, err
		}
	default:
		if text == "" {
			return a, fmt.Errorf("empty %s", kind)
		}
	}
	return a, nil
}

func (b *builder) checkCallee(callee string) error {
	lib, name := core.SplitCallee(callee)
	if lib != "" {
		if !b.libs[lib] {
			return fmt.Errorf("dangling reference %q: library %q is not declared", callee, lib)
		}
		if name == "" {
			return fmt.Errorf("dangling reference %q: no member name", callee)
		}
		return nil
	}
	if _, ok := b.blocks[name]; ok {
		return nil
	}
	if b.externs[name] {
		return nil
	}
	return fmt.Errorf("dangling reference %q: not a block or declared external", callee)
}

func (b *builder) checkCallCount(callee string, count int64) error {
	if lib, _ := core.SplitCallee(callee); lib != "" {
		return nil
	}
	target, ok := b.blocks[callee]
	if !ok {
		return nil
	}
	if int(count) != len(target.Params) {
		return fmt.Errorf("call %s passes %d argument(s), block takes %d", callee, count, len(target.Params))
	}
	return nil
}

// declaresMetamodel reports whether a declared model conforms to name.
func (b *builder) declaresMetamodel(name string) bool {
	for _, p := range b.params {
		if p.Metamodel == name {
			return true
		}
	}
	return false
}

func (b *builder) fault(block string, index int, pos, msg string) *core.LoadFault {
	return &core.LoadFault{Module: b.doc.Module, Block: block, Index: index, Pos: pos, Msg: msg}
}

// isName reports whether s is a non-empty name without dots or whitespace.
func isName(s string) bool {
	return s != "" && !strings.ContainsAny(s, ". \t\r\n")
}
