// Package engine orchestrates launches: it applies the refining rewrite,
// opens models, loads modules and libraries, hands everything to a launcher
// and materializes the outputs of completed runs.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime/debug"

	"github.com/leapstack-labs/transvm/internal/modelstore"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/leapstack-labs/transvm/pkg/launcher"

	_ "github.com/leapstack-labs/transvm/internal/vm" // registers the vm launcher
)

// DefaultLauncher is used when a request names no launcher.
const DefaultLauncher = "vm"

// Config holds engine configuration.
type Config struct {
	// FS resolves module and library locators. Nil reads the OS file system.
	FS fs.FS
	// Factory opens and saves models. Nil uses a modelstore.Factory.
	Factory core.ModelFactory
	// Store records runs (optional).
	Store core.RunStore
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Engine launches transformation modules. It is safe for concurrent use;
// every launch gets its own launcher and registry.
type Engine struct {
	fs      fs.FS
	factory core.ModelFactory
	store   core.RunStore
	logger  *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	factory := cfg.Factory
	if factory == nil {
		factory = modelstore.NewFactory(nil)
	}
	return &Engine{
		fs:      cfg.FS,
		factory: factory,
		store:   cfg.Store,
		logger:  logger,
	}
}

// Launch runs req to completion, cancellation or fault. mon is released on
// every exit path. Faults are logged, returned as the error and carried in
// the result; panics of collaborators become execution faults.
func (e *Engine) Launch(ctx context.Context, req Request, mon core.Monitor) (res *core.RunResult, err error) {
	if mon == nil {
		mon = core.NullMonitor{}
	}
	defer mon.Done()

	mode := req.Options.RunMode
	if mode == "" {
		mode = core.RunModeRun
	}
	run := e.createRun(req.Module, mode)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("launch panicked", "panic", r, "stack", string(debug.Stack()))
			err = &core.ExecutionFault{Module: req.Module, Index: -1, Msg: fmt.Sprintf("panic: %v", r)}
			res = &core.RunResult{Status: core.RunStatusFailed, Fault: err}
		}
		if err != nil {
			e.logger.Error("launch failed", "module", req.Module, "error", err.Error())
		}
		e.completeRun(run, res)
	}()

	return e.launch(ctx, req, mode, mon)
}

func (e *Engine) launch(ctx context.Context, req Request, mode core.RunMode, mon core.Monitor) (*core.RunResult, error) {
	req, err := Refine(req)
	if err != nil {
		return failed(err)
	}

	name := req.Launcher
	if name == "" {
		name = DefaultLauncher
	}
	l, err := launcher.New(name, e.logger)
	if err != nil {
		return failed(err)
	}

	models, err := e.openModels(ctx, req)
	if err != nil {
		return failed(err)
	}

	mods, err := e.loadModules(ctx, req)
	if mon.Canceled() || ctx.Err() != nil {
		e.logger.Info("launch cancelled before execution", "module", req.Module)
		return &core.RunResult{Status: core.RunStatusCancelled}, nil
	}
	if err != nil {
		return failed(err)
	}

	l.Initialize(req.Options)
	for _, n := range sortedKeys(req.Sources) {
		l.AddInModel(models[n], n, req.Sources[n])
	}
	for _, n := range sortedKeys(req.InOut) {
		l.AddInOutModel(models[n], n, req.InOut[n])
	}
	for _, n := range sortedKeys(req.Targets) {
		l.AddOutModel(models[n], n, req.Targets[n])
	}
	for _, n := range sortedKeys(req.Libraries) {
		l.AddLibrary(n, mods.libraries[n])
	}

	e.logger.Info("launching", "module", mods.main.Name, "launcher", l.Name(), "overlays", len(mods.overlays))
	res, err := l.Launch(ctx, mode, mon, req.Options, mods.main, mods.overlays...)
	if err != nil {
		return res, err
	}
	if res.Status != core.RunStatusCompleted {
		return res, nil
	}

	if err := e.saveOutputs(ctx, req, models); err != nil {
		res.Status = core.RunStatusFailed
		res.Fault = err
		return res, err
	}
	e.logger.Info("run completed", "module", mods.main.Name, "executed", res.Executed)
	return res, nil
}

func failed(err error) (*core.RunResult, error) {
	return &core.RunResult{Status: core.RunStatusFailed, Fault: err}, err
}

// openModels opens every source read-only and every inout model as a
// target. Out models are created empty. All names without a storage location
// are reported together.
func (e *Engine) openModels(ctx context.Context, req Request) (map[string]core.Model, error) {
	type want struct {
		name, ref string
		target    bool
		fresh     bool
	}
	var wants []want
	for _, n := range sortedKeys(req.Sources) {
		wants = append(wants, want{n, req.Sources[n], false, false})
	}
	for _, n := range sortedKeys(req.InOut) {
		wants = append(wants, want{n, req.InOut[n], true, false})
	}
	for _, n := range sortedKeys(req.Targets) {
		wants = append(wants, want{n, req.Targets[n], true, true})
	}

	var missing, overlapping []string
	seen := make(map[string]bool, len(wants))
	for _, w := range wants {
		if seen[w.name] {
			overlapping = append(overlapping, w.name)
		}
		seen[w.name] = true
		if _, ok := req.Paths[w.name]; !ok {
			missing = append(missing, w.name)
		}
	}
	if len(overlapping) > 0 {
		return nil, &core.BindFault{Names: overlapping, Msg: "models bound in more than one role"}
	}
	if len(missing) > 0 {
		return nil, &core.BindFault{Names: missing, Msg: "no storage location for models"}
	}

	models := make(map[string]core.Model, len(wants))
	for _, w := range wants {
		loc := req.Paths[w.name]
		var (
			m   core.Model
			err error
		)
		if w.fresh {
			m, err = e.factory.NewModel(ctx, loc, w.ref)
		} else {
			m, err = e.factory.OpenModel(ctx, loc, w.ref, w.target)
		}
		if err != nil {
			return nil, &core.BindFault{Names: []string{w.name}, Msg: fmt.Sprintf("cannot open model at %s: %v", loc, err)}
		}
		e.logger.Debug("opened model", "name", w.name, "location", loc, "target", w.target, "new", w.fresh)
		models[w.name] = m
	}
	return models, nil
}

// saveOutputs materializes out models to their own location and inout models
// to their refined location, falling back to their own.
func (e *Engine) saveOutputs(ctx context.Context, req Request, models map[string]core.Model) error {
	for _, n := range sortedKeys(req.Targets) {
		if err := e.save(ctx, models[n], n, req.Paths[n]); err != nil {
			return err
		}
	}
	for _, n := range sortedKeys(req.InOut) {
		loc, ok := req.Paths[RefinedName(n)]
		if !ok {
			loc = req.Paths[n]
		}
		if err := e.save(ctx, models[n], n, loc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) save(ctx context.Context, m core.Model, name, loc string) error {
	if err := e.factory.SaveModel(ctx, m, loc); err != nil {
		return fmt.Errorf("failed to save model %s to %s: %w", name, loc, err)
	}
	e.logger.Debug("saved model", "name", name, "location", loc)
	return nil
}

func (e *Engine) createRun(module string, mode core.RunMode) *core.Run {
	if e.store == nil {
		return nil
	}
	run, err := e.store.CreateRun(module, string(mode))
	if err != nil {
		e.logger.Warn("failed to record run", "error", err.Error())
		return nil
	}
	e.logger.Debug("created run", "run_id", run.ID)
	return run
}

func (e *Engine) completeRun(run *core.Run, res *core.RunResult) {
	if run == nil || res == nil {
		return
	}
	var msg string
	if res.Fault != nil {
		msg = res.Fault.Error()
	}
	if err := e.store.CompleteRun(run.ID, res.Status, res.Executed, msg); err != nil {
		e.logger.Warn("failed to complete run record", "run_id", run.ID, "error", err.Error())
	}
}
