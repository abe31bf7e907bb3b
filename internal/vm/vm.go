// Package vm is the stack interpreter that executes linked transformation
// modules against the models bound in a registry.
package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/transvm/internal/registry"
	"github.com/leapstack-labs/transvm/pkg/core"
)

// DefaultMaxDepth bounds the call stack of a run.
const DefaultMaxDepth = 1024

// errCancelled unwinds a run that observed cancellation at a checkpoint.
var errCancelled = errors.New("run cancelled")

// Interpreter executes effective modules. It holds no per-run state and may
// run any number of modules concurrently.
type Interpreter struct {
	logger   *slog.Logger
	maxDepth int
	builtins map[string]Builtin
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxDepth sets the maximum call depth.
func WithMaxDepth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// WithBuiltin adds or replaces a builtin operation.
func WithBuiltin(name string, arity int, fn BuiltinFunc) Option {
	return func(in *Interpreter) {
		in.builtins[name] = Builtin{Name: name, Arity: arity, Fn: fn}
	}
}

// New creates an interpreter. A nil logger discards output.
func New(logger *slog.Logger, opts ...Option) *Interpreter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	in := &Interpreter{
		logger:   logger,
		maxDepth: DefaultMaxDepth,
		builtins: defaultBuiltins(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run executes eff's entry block. Bindings are checked before any operation
// runs. A cancelled run returns a result with status cancelled, the partial
// outputs and a nil error. Faults are returned both as the error and in the
// result.
func (in *Interpreter) Run(ctx context.Context, eff *core.EffectiveModule, reg *registry.Registry,
	mode core.RunMode, mon core.Monitor) (*core.RunResult, error) {
	if mon == nil {
		mon = core.NullMonitor{}
	}
	if mode != core.RunModeRun {
		in.logger.Warn("unsupported run mode, falling back to run", slog.String("mode", string(mode)))
	}

	if err := requireAll(eff, reg); err != nil {
		return &core.RunResult{Status: core.RunStatusFailed, Fault: err}, err
	}

	x := &execution{
		in:     in,
		ctx:    ctx,
		reg:    reg,
		mon:    mon,
		logger: in.logger.With(slog.String("module", eff.Name)),
		main:   &scope{module: eff.Name, blocks: eff.Block},
	}
	in.logger.Debug("run started", slog.String("module", eff.Name), slog.String("entry", eff.Entry))

	value, err := x.run(eff.Entry)
	res := &core.RunResult{Executed: x.executed, Outputs: reg.Targets()}
	switch {
	case errors.Is(err, errCancelled):
		res.Status = core.RunStatusCancelled
		in.logger.Info("run cancelled", slog.String("module", eff.Name), slog.Int("executed", x.executed))
		return res, nil
	case err != nil:
		res.Status = core.RunStatusFailed
		res.Fault = err
		return res, err
	}
	res.Status = core.RunStatusCompleted
	res.Value = value
	in.logger.Debug("run completed", slog.String("module", eff.Name), slog.Int("executed", x.executed))
	return res, nil
}

// requireAll checks the effective module's bindings and those of every
// library reachable from it, then resolves every library call.
func requireAll(eff *core.EffectiveModule, reg *registry.Registry) error {
	if err := reg.Require(eff.Parameters, eff.Libraries); err != nil {
		return err
	}
	var problems []string
	seen := make(map[string]bool)
	queue := append([]string(nil), eff.Libraries...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		lib, err := reg.Library(name)
		if err != nil {
			return err
		}
		if err := reg.Require(lib.Parameters, lib.Libraries); err != nil {
			return err
		}
		queue = append(queue, lib.Libraries...)
		problems = append(problems, checkCalls(lib.Name, lib.Blocks, lib, reg)...)
	}

	blocks := make([]*core.Block, 0, len(eff.Order))
	for _, name := range eff.Order {
		blocks = append(blocks, eff.Blocks[name])
	}
	problems = append(checkCalls(eff.Name, blocks, nil, reg), problems...)
	if len(problems) > 0 {
		return &core.BindFault{Names: problems, Msg: "library calls do not resolve"}
	}
	return nil
}

// checkCalls resolves the callees of blocks. Qualified callees resolve
// against the bound libraries. Unqualified ones resolve against local, and
// are skipped when local is nil since the linker checked them.
func checkCalls(owner string, blocks []*core.Block, local *core.Module, reg *registry.Registry) []string {
	var problems []string
	for _, b := range blocks {
		for i, op := range b.Ops {
			if op.Code != core.OpCall || len(op.Args) < 2 {
				continue
			}
			callee := op.Args[0].Text
			lib, name := core.SplitCallee(callee)
			mod := local
			if lib != "" {
				m, err := reg.Library(lib)
				if err != nil {
					problems = append(problems, fmt.Sprintf("%s (library not bound, from %s.%s[%d])", callee, owner, b.Name, i))
					continue
				}
				mod = m
			}
			if mod == nil {
				continue
			}
			if blk, ok := mod.Block(name); ok {
				if n := int(op.Args[1].Int); n != len(blk.Params) {
					problems = append(problems, fmt.Sprintf("%s (passes %d argument(s), block takes %d, from %s.%s[%d])",
						callee, n, len(blk.Params), owner, b.Name, i))
				}
				continue
			}
			if _, ok := mod.Native(name); !ok {
				problems = append(problems, fmt.Sprintf("%s (not defined by %s, from %s.%s[%d])", callee, mod.Name, owner, b.Name, i))
			}
		}
	}
	return problems
}
