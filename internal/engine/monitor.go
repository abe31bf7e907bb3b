package engine

import (
	"context"
	"sync/atomic"
)

// ContextMonitor is a core.Monitor cancelled through a context.
type ContextMonitor struct {
	ctx    context.Context
	worked atomic.Int64
	done   atomic.Bool
}

// NewContextMonitor returns a monitor that reports cancellation once ctx is
// done.
func NewContextMonitor(ctx context.Context) *ContextMonitor {
	return &ContextMonitor{ctx: ctx}
}

func (m *ContextMonitor) Canceled() bool { return m.ctx.Err() != nil }
func (m *ContextMonitor) Worked(n int)   { m.worked.Add(int64(n)) }
func (m *ContextMonitor) Done()          { m.done.Store(true) }

// Work is the total progress reported so far.
func (m *ContextMonitor) Work() int64 { return m.worked.Load() }

// IsDone reports whether Done has been called.
func (m *ContextMonitor) IsDone() bool { return m.done.Load() }
