package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/transvm/internal/registry"
	"github.com/leapstack-labs/transvm/pkg/core"
)

// FrameState is the lifecycle state of a call frame.
type FrameState uint8

// Frame states.
const (
	FrameReady FrameState = iota
	FrameExecuting
	FrameSuspendedOnCall
	FrameCompleted
	FrameFaulted
)

func (s FrameState) String() string {
	switch s {
	case FrameReady:
		return "ready"
	case FrameExecuting:
		return "executing"
	case FrameSuspendedOnCall:
		return "suspended"
	case FrameCompleted:
		return "completed"
	case FrameFaulted:
		return "faulted"
	}
	return fmt.Sprintf("FrameState(%d)", s)
}

// scope is the module a frame's unqualified names resolve in: the effective
// module, or a library module.
type scope struct {
	module string
	blocks func(name string) (*core.Block, bool)
	lib    *core.Module
}

func (s *scope) native(name string) (core.NativeFunc, bool) {
	if s.lib == nil {
		return nil, false
	}
	return s.lib.Native(name)
}

type iteration struct {
	items []any
	next  int
	body  int // index of the first operation of the loop body
}

type frame struct {
	scope  *scope
	block  *core.Block
	state  FrameState
	ip     int
	stack  []any
	locals map[string]any
	iters  []*iteration
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// popN pops n values and returns them in push order.
func (f *frame) popN(n int) []any {
	args := make([]any, n)
	copy(args, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return args
}

// execution is the state of one run.
type execution struct {
	in       *Interpreter
	ctx      context.Context
	reg      *registry.Registry
	mon      core.Monitor
	logger   *slog.Logger
	main     *scope
	frames   []*frame
	executed int
	result   any
}

// checkpoint reports cancellation requested through the monitor or context.
func (x *execution) checkpoint() error {
	if x.mon.Canceled() || x.ctx.Err() != nil {
		return errCancelled
	}
	return nil
}

func (x *execution) run(entry string) (any, error) {
	blk, ok := x.main.blocks(entry)
	if !ok {
		return nil, &core.ExecutionFault{Module: x.main.module, Block: entry, Index: -1, Msg: "entry block not found"}
	}
	if err := x.enter(x.main, blk, nil); err != nil {
		return nil, err
	}

	for len(x.frames) > 0 {
		f := x.frames[len(x.frames)-1]
		if f.ip >= len(f.block.Ops) {
			x.leave(nil)
			continue
		}
		op := f.block.Ops[f.ip]
		pops, _ := op.StackEffect()
		if len(f.stack) < pops {
			f.state = FrameFaulted
			return nil, x.fault(f, op, fmt.Sprintf("stack underflow: need %d operand(s), have %d", pops, len(f.stack)), nil)
		}
		x.executed++
		x.mon.Worked(1)
		if err := x.step(f, op); err != nil {
			if !errors.Is(err, errCancelled) {
				f.state = FrameFaulted
			}
			return nil, err
		}
	}
	return x.result, nil
}

// enter pushes a frame for blk with args bound to its parameters. Block entry
// is a cancellation checkpoint.
func (x *execution) enter(sc *scope, blk *core.Block, args []any) error {
	if err := x.checkpoint(); err != nil {
		return err
	}
	f := &frame{scope: sc, block: blk, state: FrameReady, locals: make(map[string]any, len(blk.Params))}
	for i, p := range blk.Params {
		if i < len(args) {
			f.locals[p] = args[i]
		} else {
			f.locals[p] = nil
		}
	}
	if len(x.frames) > 0 {
		x.frames[len(x.frames)-1].state = FrameSuspendedOnCall
	}
	x.frames = append(x.frames, f)
	f.state = FrameExecuting
	return nil
}

// leave completes the top frame and hands value to its caller.
func (x *execution) leave(value any) {
	f := x.frames[len(x.frames)-1]
	f.state = FrameCompleted
	x.frames = x.frames[:len(x.frames)-1]
	if len(x.frames) == 0 {
		x.result = value
		return
	}
	caller := x.frames[len(x.frames)-1]
	caller.state = FrameExecuting
	caller.push(value)
	caller.ip++
}

// jump moves to target; jumps to an earlier operation are checkpoints.
func (x *execution) jump(f *frame, target int) error {
	if target <= f.ip {
		if err := x.checkpoint(); err != nil {
			return err
		}
	}
	f.ip = target
	return nil
}

func (x *execution) label(f *frame, op core.Operation) int {
	i, _ := f.block.Label(op.Args[0].Text)
	return i
}

func (x *execution) step(f *frame, op core.Operation) error {
	switch op.Code {
	case core.OpNop:
	case core.OpPush:
		f.push(op.Args[0].Text)
	case core.OpPushInt:
		f.push(op.Args[0].Int)
	case core.OpPushFloat:
		f.push(op.Args[0].Float)
	case core.OpPushTrue:
		f.push(true)
	case core.OpPushFalse:
		f.push(false)
	case core.OpPushNull:
		f.push(nil)
	case core.OpPop:
		f.pop()
	case core.OpDup:
		f.push(f.stack[len(f.stack)-1])
	case core.OpSwap:
		n := len(f.stack)
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]

	case core.OpLoad:
		v, ok := f.locals[op.Args[0].Text]
		if !ok {
			return x.fault(f, op, fmt.Sprintf("undefined local %q", op.Args[0].Text), nil)
		}
		f.push(v)
	case core.OpStore:
		f.locals[op.Args[0].Text] = f.pop()

	case core.OpModel:
		b, err := x.reg.Resolve(op.Args[0].Text)
		if err != nil {
			return x.fault(f, op, "model not bound", err)
		}
		f.push(b.Model)
	case core.OpNew:
		b, err := x.reg.Resolve(op.Args[1].Text)
		if err != nil {
			return x.fault(f, op, "model not bound", err)
		}
		if !b.Role.Writable() {
			return x.fault(f, op, fmt.Sprintf("cannot create elements in %s model %s", b.Role, b.Name), nil)
		}
		e, err := b.Model.NewElement(op.Args[0].Text)
		if err != nil {
			return x.fault(f, op, "cannot create element", err)
		}
		f.push(e)
	case core.OpAllOf:
		b, err := x.reg.Resolve(op.Args[1].Text)
		if err != nil {
			return x.fault(f, op, "model not bound", err)
		}
		elems, err := b.Model.ElementsOf(op.Args[0].Text)
		if err != nil {
			return x.fault(f, op, "cannot list elements", err)
		}
		items := make([]any, len(elems))
		for i, e := range elems {
			items[i] = e
		}
		f.push(items)
	case core.OpGet:
		e, ok := f.pop().(core.Element)
		if !ok {
			return x.fault(f, op, "get expects an element", nil)
		}
		v, err := e.Get(op.Args[0].Text)
		if err != nil {
			return x.fault(f, op, "cannot read feature", err)
		}
		f.push(v)
	case core.OpSet:
		value := f.pop()
		e, ok := f.pop().(core.Element)
		if !ok {
			return x.fault(f, op, "set expects an element", nil)
		}
		role, bound := x.reg.RoleOf(e.Model())
		if !bound || !role.Writable() {
			return x.fault(f, op, fmt.Sprintf("cannot modify %s: model %s is not writable", FormatValue(e), e.Model().Name()), nil)
		}
		if err := e.Set(op.Args[0].Text, value); err != nil {
			return x.fault(f, op, "cannot write feature", err)
		}

	case core.OpCall:
		return x.call(f, op)
	case core.OpBuiltin:
		name := op.Args[0].Text
		b, ok := x.in.builtins[name]
		if !ok {
			return x.fault(f, op, fmt.Sprintf("unknown builtin %q", name), nil)
		}
		if int(op.Args[1].Int) != b.Arity {
			return x.fault(f, op, fmt.Sprintf("builtin %s takes %d argument(s), got %d", name, b.Arity, op.Args[1].Int), nil)
		}
		v, err := b.Fn(f.popN(b.Arity))
		if err != nil {
			return x.fault(f, op, "builtin "+name+" failed", err)
		}
		f.push(v)
	case core.OpReturn:
		var v any
		if len(f.stack) > 0 {
			v = f.pop()
		}
		x.leave(v)
		return nil

	case core.OpGoto:
		return x.jump(f, x.label(f, op))
	case core.OpIf, core.OpIfNot:
		cond, err := asBool(f.pop())
		if err != nil {
			return x.fault(f, op, "condition is not a Boolean", err)
		}
		if cond == (op.Code == core.OpIf) {
			return x.jump(f, x.label(f, op))
		}
	case core.OpIterate:
		items, err := asList(f.pop())
		if err != nil {
			return x.fault(f, op, "cannot iterate", err)
		}
		if len(items) == 0 {
			return x.jump(f, x.label(f, op))
		}
		f.iters = append(f.iters, &iteration{items: items, next: 1, body: f.ip + 1})
		f.push(items[0])
	case core.OpEndIterate:
		if len(f.iters) == 0 {
			return x.fault(f, op, "enditerate without an open iteration", nil)
		}
		it := f.iters[len(f.iters)-1]
		if it.next < len(it.items) {
			f.push(it.items[it.next])
			it.next++
			return x.jump(f, it.body)
		}
		f.iters = f.iters[:len(f.iters)-1]

	case core.OpLog:
		x.logger.Info(FormatValue(f.pop()), slog.String("block", f.block.Name))

	default:
		return x.fault(f, op, fmt.Sprintf("unknown opcode %s", op.Code), nil)
	}
	f.ip++
	return nil
}

// call invokes an in-scope block, a library block or a library native.
func (x *execution) call(f *frame, op core.Operation) error {
	callee := op.Args[0].Text
	n := int(op.Args[1].Int)

	sc := f.scope
	lib, name := core.SplitCallee(callee)
	if lib != "" {
		mod, err := x.reg.Library(lib)
		if err != nil {
			return x.fault(f, op, "library not bound", err)
		}
		sc = &scope{module: mod.Name, blocks: mod.Block, lib: mod}
	}

	if blk, ok := sc.blocks(name); ok {
		if n != len(blk.Params) {
			return x.fault(f, op, fmt.Sprintf("%s takes %d argument(s), got %d", callee, len(blk.Params), n), nil)
		}
		if len(x.frames) >= x.in.maxDepth {
			return x.fault(f, op, fmt.Sprintf("call depth exceeds %d", x.in.maxDepth), nil)
		}
		return x.enter(sc, blk, f.popN(n))
	}

	if fn, ok := sc.native(name); ok {
		v, err := x.invokeNative(fn, f.popN(n))
		if err != nil {
			return x.fault(f, op, "native "+callee+" failed", err)
		}
		f.push(v)
		f.ip++
		return nil
	}
	return x.fault(f, op, fmt.Sprintf("unresolved call to %q", callee), nil)
}

func (x *execution) invokeNative(fn core.NativeFunc, args []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(x.ctx, args)
}

func (x *execution) fault(f *frame, op core.Operation, msg string, err error) error {
	return &core.ExecutionFault{
		Module: f.scope.module,
		Block:  f.block.Name,
		Index:  f.ip,
		Pos:    op.Pos,
		Op:     op.String(),
		Msg:    msg,
		Err:    err,
	}
}
