// Package modelstore provides the model handles the interpreter operates on,
// and factories that open and materialize them from memory, YAML files and
// SQLite databases.
package modelstore

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// ErrReadOnly is returned when a model opened for reading is mutated.
var ErrReadOnly = errors.New("model is read-only")

// Model is an in-memory object graph. All factories in this package load
// into and save from a Model.
type Model struct {
	mu       sync.RWMutex
	name     string
	refModel string
	target   bool

	elements []*Element
	byID     map[string]*Element
	nextID   int
}

// NewModel creates an empty model.
func NewModel(name, referenceModel string, target bool) *Model {
	return &Model{
		name:     name,
		refModel: referenceModel,
		target:   target,
		byID:     make(map[string]*Element),
	}
}

func (m *Model) Name() string           { return m.name }
func (m *Model) ReferenceModel() string { return m.refModel }

func (m *Model) IsTarget() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// SetTarget switches the model between read-only and writable.
func (m *Model) SetTarget(target bool) {
	m.mu.Lock()
	m.target = target
	m.mu.Unlock()
}

// Clone returns a deep copy of m with the given writability. Features that
// reference m's own elements point into the copy.
func (m *Model) Clone(target bool) *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := NewModel(m.name, m.refModel, target)
	c.nextID = m.nextID
	for _, e := range m.elements {
		ce := &Element{
			id:       e.id,
			typ:      e.typ,
			model:    c,
			features: make(map[string]any, len(e.features)),
			order:    append([]string(nil), e.order...),
		}
		c.elements = append(c.elements, ce)
		c.byID[e.id] = ce
	}
	for i, e := range m.elements {
		for feature, v := range e.features {
			c.elements[i].features[feature] = rebase(c, m, v)
		}
	}
	return c
}

// rebase maps references into from onto to's elements of the same ID.
func rebase(to, from *Model, v any) any {
	switch x := v.(type) {
	case *Element:
		if x.model == from {
			return to.byID[x.id]
		}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = rebase(to, from, item)
		}
		return out
	}
	return v
}

// NewElement creates an element of typeName. The model must be a target.
func (m *Model) NewElement(typeName string) (core.Element, error) {
	if typeName == "" {
		return nil, errors.New("element type is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.target {
		return nil, fmt.Errorf("%s: %w", m.name, ErrReadOnly)
	}
	e, err := m.addLocked("", typeName)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// addLocked appends an element. An empty id allocates the next free one.
func (m *Model) addLocked(id, typeName string) (*Element, error) {
	if id == "" {
		for {
			m.nextID++
			id = "e" + strconv.Itoa(m.nextID)
			if _, taken := m.byID[id]; !taken {
				break
			}
		}
	} else if _, taken := m.byID[id]; taken {
		return nil, fmt.Errorf("duplicate element id %q in model %s", id, m.name)
	}
	e := &Element{id: id, typ: typeName, model: m, features: make(map[string]any)}
	m.elements = append(m.elements, e)
	m.byID[id] = e
	return e, nil
}

// ElementsOf lists elements of typeName in creation order.
func (m *Model) ElementsOf(typeName string) ([]core.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Element
	for _, e := range m.elements {
		if e.typ == typeName {
			out = append(out, e)
		}
	}
	return out, nil
}

// Elements lists every element in creation order.
func (m *Model) Elements() []*Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Element(nil), m.elements...)
}

// Element looks an element up by ID.
func (m *Model) Element(id string) (*Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	return e, ok
}

// Element is a node of a Model.
type Element struct {
	id    string
	typ   string
	model *Model

	// features and order are guarded by model.mu.
	features map[string]any
	order    []string
}

func (e *Element) ID() string        { return e.id }
func (e *Element) Type() string      { return e.typ }
func (e *Element) Model() core.Model { return e.model }
func (e *Element) String() string    { return e.typ + "#" + e.id }

// Get returns a feature value, or nil when the feature was never set.
func (e *Element) Get(feature string) (any, error) {
	e.model.mu.RLock()
	defer e.model.mu.RUnlock()
	v := e.features[feature]
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		copy(out, list)
		return out, nil
	}
	return v, nil
}

// Set assigns a feature value. The owning model must be a target.
func (e *Element) Set(feature string, value any) error {
	if feature == "" {
		return errors.New("feature name is required")
	}
	v, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("feature %s: %w", feature, err)
	}
	e.model.mu.Lock()
	defer e.model.mu.Unlock()
	if !e.model.target {
		return fmt.Errorf("%s: %w", e.model.name, ErrReadOnly)
	}
	e.setLocked(feature, v)
	return nil
}

func (e *Element) setLocked(feature string, v any) {
	if _, ok := e.features[feature]; !ok {
		e.order = append(e.order, feature)
	}
	e.features[feature] = v
}

// Features returns the names of the features set on e, in first-set order.
func (e *Element) Features() []string {
	e.model.mu.RLock()
	defer e.model.mu.RUnlock()
	return append([]string(nil), e.order...)
}

// Normalize converts a Go value into the value domain of model features:
// nil, string, int64, float64, bool, core.Element or []any of those.
func Normalize(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, int64, float64, bool, core.Element:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil //nolint:gosec // G115: feature values fit in int64
	case float32:
		return float64(v), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported feature value of type %T", value)
}
