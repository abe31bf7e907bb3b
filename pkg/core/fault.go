package core

import (
	"fmt"
	"strings"
)

// FaultKind classifies transformation faults.
type FaultKind string

// Fault kinds.
const (
	FaultLoad      FaultKind = "load"
	FaultLink      FaultKind = "link"
	FaultBind      FaultKind = "bind"
	FaultExecution FaultKind = "execution"
)

// Fault is implemented by every fault type of the engine.
type Fault interface {
	error
	Kind() FaultKind
}

// LoadFault reports malformed or inconsistent module encodings.
type LoadFault struct {
	Module string
	Block  string
	Index  int // operation index, -1 when not operation-specific
	Pos    string
	Msg    string
	Err    error
}

func (f *LoadFault) Kind() FaultKind { return FaultLoad }

func (f *LoadFault) Error() string {
	var b strings.Builder
	b.WriteString("load fault")
	if f.Module != "" {
		fmt.Fprintf(&b, " in module %s", f.Module)
	}
	if f.Block != "" {
		fmt.Fprintf(&b, ", block %s", f.Block)
		if f.Index >= 0 {
			fmt.Fprintf(&b, "[%d]", f.Index)
		}
	}
	if f.Pos != "" {
		fmt.Fprintf(&b, " (%s)", f.Pos)
	}
	b.WriteString(": ")
	b.WriteString(f.Msg)
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *LoadFault) Unwrap() error { return f.Err }

// LinkFault reports overlay collisions and unresolved references after linking.
type LinkFault struct {
	Module  string
	Overlay string
	Msg     string
}

func (f *LinkFault) Kind() FaultKind { return FaultLink }

func (f *LinkFault) Error() string {
	if f.Overlay != "" {
		return fmt.Sprintf("link fault in module %s (overlay %s): %s", f.Module, f.Overlay, f.Msg)
	}
	return fmt.Sprintf("link fault in module %s: %s", f.Module, f.Msg)
}

// BindFault reports missing or incompatible model and library bindings.
type BindFault struct {
	Names []string
	Msg   string
}

func (f *BindFault) Kind() FaultKind { return FaultBind }

func (f *BindFault) Error() string {
	if len(f.Names) == 0 {
		return "bind fault: " + f.Msg
	}
	return fmt.Sprintf("bind fault: %s: %s", f.Msg, strings.Join(f.Names, ", "))
}

// ExecutionFault aborts a run. Mutations already applied are kept.
type ExecutionFault struct {
	Module string
	Block  string
	Index  int
	Pos    string
	Op     string
	Msg    string
	Err    error
}

func (f *ExecutionFault) Kind() FaultKind { return FaultExecution }

func (f *ExecutionFault) Error() string {
	var b strings.Builder
	b.WriteString("execution fault")
	if f.Block != "" {
		fmt.Fprintf(&b, " at %s", f.Block)
		if f.Index >= 0 {
			fmt.Fprintf(&b, "[%d]", f.Index)
		}
	}
	if f.Module != "" {
		fmt.Fprintf(&b, " in %s", f.Module)
	}
	if f.Pos != "" {
		fmt.Fprintf(&b, " (%s)", f.Pos)
	}
	if f.Op != "" {
		fmt.Fprintf(&b, " executing %q", f.Op)
	}
	b.WriteString(": ")
	b.WriteString(f.Msg)
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *ExecutionFault) Unwrap() error { return f.Err }
