package vm

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/transvm/internal/linker"
	"github.com/leapstack-labs/transvm/internal/registry"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/leapstack-labs/transvm/pkg/launcher"
)

// LauncherName is the key the interpreter is registered under.
const LauncherName = "vm"

func init() {
	launcher.Register(LauncherName, func(logger *slog.Logger) launcher.Launcher {
		return NewLauncher(logger)
	})
}

// Launcher runs modules on the interpreter. Each launch needs a fresh
// Launcher.
type Launcher struct {
	logger *slog.Logger
	interp *Interpreter
	opts   core.Options
	reg    *registry.Registry
}

// NewLauncher creates a launcher. A nil logger discards output.
func NewLauncher(logger *slog.Logger, opts ...Option) *Launcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Launcher{
		logger: logger,
		interp: New(logger, opts...),
		reg:    registry.New(logger),
	}
}

func (l *Launcher) Name() string { return LauncherName }

// Initialize resets the launcher for a new launch.
func (l *Launcher) Initialize(opts core.Options) {
	l.opts = opts
	l.reg = registry.New(l.logger)
	if opts.RefiningTraceMode {
		l.logger.Debug("refining trace mode enabled")
	}
}

func (l *Launcher) AddInModel(m core.Model, name, referenceModel string) {
	l.add(m, name, referenceModel, core.RoleIn)
}

func (l *Launcher) AddInOutModel(m core.Model, name, referenceModel string) {
	l.add(m, name, referenceModel, core.RoleInOut)
}

func (l *Launcher) AddOutModel(m core.Model, name, referenceModel string) {
	l.add(m, name, referenceModel, core.RoleOut)
}

// add binds m under name and registers its reference model, so that
// "allof T MM" spans every model conforming to MM.
func (l *Launcher) add(m core.Model, name, referenceModel string, role core.Role) {
	if !l.reg.Bind(name, m, role) {
		return
	}
	if referenceModel == "" && m != nil {
		referenceModel = m.ReferenceModel()
	}
	l.reg.BindReferenceModel(referenceModel, name)
}

func (l *Launcher) AddLibrary(name string, lib *core.Module) {
	l.reg.BindLibrary(name, lib)
}

// Registry exposes the bindings collected for the current launch.
func (l *Launcher) Registry() *registry.Registry { return l.reg }

// Launch links main with overlays and runs the result.
func (l *Launcher) Launch(ctx context.Context, mode core.RunMode, mon core.Monitor, _ core.Options,
	main *core.Module, overlays ...*core.Module) (*core.RunResult, error) {
	eff, err := linker.Link(main, overlays...)
	if err != nil {
		return &core.RunResult{Status: core.RunStatusFailed, Fault: err}, err
	}
	return l.interp.Run(ctx, eff, l.reg, mode, mon)
}
