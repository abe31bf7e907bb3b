// Package launcher defines the contract between the launch orchestrator and
// the engines that execute transformation modules, and the table engines
// register themselves in.
package launcher

import (
	"context"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Launcher executes a transformation module against bound models.
//
// A launch calls Initialize once, then the Add methods to collect models and
// libraries, then Launch. The caller owns mon and calls its Done method;
// launchers only report progress and poll for cancellation.
type Launcher interface {
	// Name is the key the launcher is registered under.
	Name() string

	Initialize(opts core.Options)

	AddInModel(m core.Model, name, referenceModel string)
	AddInOutModel(m core.Model, name, referenceModel string)
	AddOutModel(m core.Model, name, referenceModel string)
	AddLibrary(name string, lib *core.Module)

	// Launch links main with overlays, binds the collected models and
	// libraries, and runs the result.
	Launch(ctx context.Context, mode core.RunMode, mon core.Monitor, opts core.Options,
		main *core.Module, overlays ...*core.Module) (*core.RunResult, error)
}
