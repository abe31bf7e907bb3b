// Package linker superimposes overlay modules onto a main module to produce the
// effective module a launch executes.
package linker

import (
	"fmt"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Link merges overlays onto main. Each overlay, in order, replaces same-named
// blocks wholesale and appends blocks main does not have, so the last overlay
// defining a block wins. A replaced block keeps its position in block order.
//
// Link never modifies its inputs; blocks are shared with the source modules.
func Link(main *core.Module, overlays ...*core.Module) (*core.EffectiveModule, error) {
	if main == nil {
		return nil, &core.LinkFault{Msg: "no main module"}
	}

	eff := &core.EffectiveModule{
		Name:       main.Name,
		Entry:      main.Entry,
		Parameters: append([]core.Parameter(nil), main.Parameters...),
		Libraries:  append([]string(nil), main.Libraries...),
		Blocks:     make(map[string]*core.Block, len(main.Blocks)),
		Order:      make([]string, 0, len(main.Blocks)),
		Origins:    make(map[string]string, len(main.Blocks)),
	}
	if eff.Entry == "" {
		eff.Entry = core.DefaultEntry
	}
	for _, b := range main.Blocks {
		eff.Blocks[b.Name] = b
		eff.Order = append(eff.Order, b.Name)
		eff.Origins[b.Name] = main.Name
	}

	for _, ov := range overlays {
		if ov == nil {
			continue
		}
		if err := checkOverlay(main, ov); err != nil {
			return nil, err
		}
		for _, b := range ov.Blocks {
			if _, exists := eff.Blocks[b.Name]; !exists {
				eff.Order = append(eff.Order, b.Name)
			}
			eff.Blocks[b.Name] = b
			eff.Origins[b.Name] = ov.Name
		}
	}

	if _, ok := eff.Blocks[eff.Entry]; !ok {
		return nil, &core.LinkFault{Module: main.Name, Msg: fmt.Sprintf("entry block %q not found", eff.Entry)}
	}
	if err := checkCalls(eff); err != nil {
		return nil, err
	}
	return eff, nil
}

// checkOverlay rejects overlays whose declarations collide with main's.
// Identical redeclarations are allowed.
func checkOverlay(main, ov *core.Module) error {
	for _, p := range ov.Parameters {
		mp, ok := main.Parameter(p.Name)
		if !ok {
			return &core.LinkFault{Module: main.Name, Overlay: ov.Name,
				Msg: fmt.Sprintf("model %q is not declared by the main module", p.Name)}
		}
		if mp.Role != p.Role || mp.Metamodel != p.Metamodel {
			return &core.LinkFault{Module: main.Name, Overlay: ov.Name,
				Msg: fmt.Sprintf("model %q redeclared as %s:%s, main declares %s:%s",
					p.Name, p.Role, p.Metamodel, mp.Role, mp.Metamodel)}
		}
	}
	for _, lib := range ov.Libraries {
		if !main.DeclaresLibrary(lib) {
			return &core.LinkFault{Module: main.Name, Overlay: ov.Name,
				Msg: fmt.Sprintf("library %q is not declared by the main module", lib)}
		}
	}
	return nil
}

// checkCalls verifies every unqualified call target exists after linking
// and takes as many arguments as the call passes.
func checkCalls(eff *core.EffectiveModule) error {
	for _, name := range eff.Order {
		b := eff.Blocks[name]
		for i, op := range b.Ops {
			if op.Code != core.OpCall || len(op.Args) == 0 {
				continue
			}
			callee := op.Args[0].Text
			if lib, _ := core.SplitCallee(callee); lib != "" {
				continue
			}
			target, ok := eff.Blocks[callee]
			if !ok {
				return &core.LinkFault{Module: eff.Name,
					Msg: fmt.Sprintf("unresolved call to %q from %s[%d] (from %s)", callee, name, i, eff.Origins[name])}
			}
			if len(op.Args) > 1 && int(op.Args[1].Int) != len(target.Params) {
				return &core.LinkFault{Module: eff.Name,
					Msg: fmt.Sprintf("call %s from %s[%d] (from %s) passes %d argument(s), %s (from %s) takes %d",
						callee, name, i, eff.Origins[name], op.Args[1].Int, callee, eff.Origins[callee], len(target.Params))}
			}
		}
	}
	return nil
}
