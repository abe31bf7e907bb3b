// Package state records the history of launches in SQLite.
package state

import (
	"github.com/leapstack-labs/transvm/pkg/core"
)

// Store is a run history that can be opened and closed.
type Store interface {
	core.RunStore

	Open(path string) error
	Close() error
	// Migrate applies pending schema migrations.
	Migrate() error
}

// Type aliases for the run types defined in pkg/core.
type (
	// Run is an alias for core.Run.
	Run = core.Run

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus
)

var _ Store = (*SQLiteStore)(nil)
