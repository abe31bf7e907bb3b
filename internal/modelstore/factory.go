package modelstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Scheme-prefixed locations understood by the default Factory:
//
//	mem:<name>              models kept in process memory
//	file:<path>             YAML model documents (also bare paths)
//	sqlite:<path>#<model>   models stored in a SQLite database
const (
	SchemeMem    = "mem"
	SchemeFile   = "file"
	SchemeSQLite = "sqlite"
)

// UnknownSchemeError is returned for locations whose scheme has no factory.
type UnknownSchemeError struct {
	Scheme    string
	Available []string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown model location scheme %q (available: %s)", e.Scheme, strings.Join(e.Available, ", "))
}

// Factory dispatches model locations to per-scheme factories.
type Factory struct {
	mu      sync.RWMutex
	schemes map[string]core.ModelFactory
}

// NewFactory creates a dispatching factory with the mem, file and sqlite
// schemes registered. mem is backed by the given store, or a fresh one when
// nil.
func NewFactory(mem *MemoryStore) *Factory {
	if mem == nil {
		mem = NewMemoryStore()
	}
	f := &Factory{schemes: make(map[string]core.ModelFactory)}
	f.Register(SchemeMem, mem)
	f.Register(SchemeFile, &FileFactory{})
	f.Register(SchemeSQLite, &SQLiteFactory{})
	return f
}

// Register adds or replaces the factory for scheme.
func (f *Factory) Register(scheme string, factory core.ModelFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemes[scheme] = factory
}

// Schemes returns the registered schemes, sorted.
func (f *Factory) Schemes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.schemes))
	for s := range f.schemes {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

func (f *Factory) lookup(location string) (core.ModelFactory, string, error) {
	scheme, rest := SplitLocation(location)
	f.mu.RLock()
	factory, ok := f.schemes[scheme]
	f.mu.RUnlock()
	if !ok {
		return nil, "", &UnknownSchemeError{Scheme: scheme, Available: f.Schemes()}
	}
	return factory, scheme + ":" + rest, nil
}

// OpenModel implements core.ModelFactory.
func (f *Factory) OpenModel(ctx context.Context, location, referenceModel string, asTarget bool) (core.Model, error) {
	factory, loc, err := f.lookup(location)
	if err != nil {
		return nil, err
	}
	return factory.OpenModel(ctx, loc, referenceModel, asTarget)
}

// NewModel implements core.ModelFactory.
func (f *Factory) NewModel(ctx context.Context, location, referenceModel string) (core.Model, error) {
	factory, loc, err := f.lookup(location)
	if err != nil {
		return nil, err
	}
	return factory.NewModel(ctx, loc, referenceModel)
}

// SaveModel implements core.ModelFactory.
func (f *Factory) SaveModel(ctx context.Context, model core.Model, location string) error {
	factory, loc, err := f.lookup(location)
	if err != nil {
		return err
	}
	return factory.SaveModel(ctx, model, loc)
}

// SplitLocation splits a location into its scheme and remainder. Locations
// without a scheme are file paths.
func SplitLocation(location string) (scheme, rest string) {
	if i := strings.IndexByte(location, ':'); i > 1 {
		return location[:i], location[i+1:]
	}
	return SchemeFile, location
}

// nameOf derives a model name from a location path: the file name without
// its extension.
func nameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// MemoryStore keeps models in process memory keyed by location. It backs the
// mem: scheme and is handy in tests.
type MemoryStore struct {
	mu     sync.Mutex
	models map[string]*Model
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{models: make(map[string]*Model)}
}

// Put stores m under location.
func (s *MemoryStore) Put(location string, m *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[trimScheme(location, SchemeMem)] = m
}

// Get returns the model stored under location.
func (s *MemoryStore) Get(location string) (*Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[trimScheme(location, SchemeMem)]
	return m, ok
}

// OpenModel returns a copy of the model stored under location, so openers
// never share a handle. Targets that do not exist yet open empty. Nothing is
// stored until SaveModel.
func (s *MemoryStore) OpenModel(_ context.Context, location, referenceModel string, asTarget bool) (core.Model, error) {
	key := trimScheme(location, SchemeMem)
	s.mu.Lock()
	m, ok := s.models[key]
	s.mu.Unlock()

	if !ok {
		if !asTarget {
			return nil, fmt.Errorf("no model at %s", location)
		}
		return NewModel(key, referenceModel, true), nil
	}
	if referenceModel != "" && m.ReferenceModel() != "" && m.ReferenceModel() != referenceModel {
		return nil, fmt.Errorf("model at %s conforms to %s, not %s", location, m.ReferenceModel(), referenceModel)
	}
	return m.Clone(asTarget), nil
}

// NewModel returns an empty model for location without storing it.
func (s *MemoryStore) NewModel(_ context.Context, location, referenceModel string) (core.Model, error) {
	return NewModel(trimScheme(location, SchemeMem), referenceModel, true), nil
}

// SaveModel stores the model under location.
func (s *MemoryStore) SaveModel(_ context.Context, model core.Model, location string) error {
	m, ok := model.(*Model)
	if !ok {
		return fmt.Errorf("cannot store %T in memory", model)
	}
	s.Put(location, m)
	return nil
}

func trimScheme(location, scheme string) string {
	return strings.TrimPrefix(location, scheme+":")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
