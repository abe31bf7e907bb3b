package core

import "strings"

// RunMode selects how a launcher executes a module.
type RunMode string

// Run modes. Only RunModeRun is executed; launchers fall back to it for any
// other value.
const (
	RunModeRun   RunMode = "run"
	RunModeDebug RunMode = "debug"
)

// ParseRunMode normalizes a mode string. The empty string means RunModeRun.
func ParseRunMode(s string) RunMode {
	if s == "" {
		return RunModeRun
	}
	return RunMode(strings.ToLower(strings.TrimSpace(s)))
}

// Options is the immutable option set of one launch.
type Options struct {
	RefiningTraceMode bool
	RunMode           RunMode
	// RefinedModel names the source model to refine when a refining launch
	// has more than one source model.
	RefinedModel string
	// Extensions carries unrecognized option keys.
	Extensions map[string]any
}

// Extension returns an extension option value.
func (o Options) Extension(key string) (any, bool) {
	v, ok := o.Extensions[key]
	return v, ok
}

// Monitor is the cancellation and progress resource of a launch. The
// orchestrator that acquired it calls Done exactly once, on every exit path.
type Monitor interface {
	Canceled() bool
	Worked(n int)
	Done()
}

// NullMonitor never cancels and ignores progress.
type NullMonitor struct{}

func (NullMonitor) Canceled() bool { return false }
func (NullMonitor) Worked(int)     {}
func (NullMonitor) Done()          {}
