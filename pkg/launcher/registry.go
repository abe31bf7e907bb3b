package launcher

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory creates a fresh launcher. A nil logger discards output.
type Factory func(*slog.Logger) Launcher

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a launcher factory to the table.
// Called by launcher implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a launcher factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New creates a launcher instance by name.
func New(name string, logger *slog.Logger) (Launcher, error) {
	if name == "" {
		return nil, fmt.Errorf("launcher not specified")
	}
	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownLauncherError{Name: name, Available: List()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// List returns all registered launcher names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a launcher is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownLauncherError is returned when an unregistered launcher is requested.
type UnknownLauncherError struct {
	Name      string
	Available []string
}

func (e *UnknownLauncherError) Error() string {
	return fmt.Sprintf("unknown launcher %q\nAvailable launchers: %v\nHint: Check launcher in your launch configuration", e.Name, e.Available)
}
