package core

import (
	"errors"
	"time"
)

// RunStatus represents the status of a run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunResult is the outcome of executing an effective module.
type RunResult struct {
	Status RunStatus
	// Value is what the entry block returned.
	Value any
	// Outputs are the out and inout models of the run. On cancellation they
	// hold whatever partial output was produced.
	Outputs  map[string]Model
	Executed int
	Fault    error
}

// FaultKind returns the kind of the run's fault, or "" when there is none.
func (r *RunResult) FaultKind() FaultKind {
	if r == nil || r.Fault == nil {
		return ""
	}
	var f Fault
	if errors.As(r.Fault, &f) {
		return f.Kind()
	}
	return FaultExecution
}

// Run is a persisted record of one launch.
type Run struct {
	ID          string
	Module      string
	Mode        string
	Status      RunStatus
	Executed    int
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// RunStore records launches.
type RunStore interface {
	CreateRun(module, mode string) (*Run, error)
	CompleteRun(id string, status RunStatus, executed int, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
}
