// Package registry maps the model and library names a transformation refers to
// onto the handles bound for one launch.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Binding is a model bound under a name with an access role.
type Binding struct {
	Name           string
	Model          core.Model
	Role           core.Role
	ReferenceModel string
}

// Registry holds the bindings of a single launch. The first binding of a name
// wins; later duplicates are logged and ignored.
type Registry struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// models maps binding names to bindings: "IN" → *Binding
	models map[string]*Binding
	// order keeps model names in bind order
	order []string
	// roles maps bound handles back to their role for write checks
	roles map[core.Model]core.Role

	libraries map[string]*core.Module
	libOrder  []string

	// refModels maps reference model names to the models bound with them:
	// "MM" → ["IN", "OUT"]
	refModels map[string][]string
}

// New creates an empty registry. A nil logger discards output.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		logger:    logger,
		models:    make(map[string]*Binding),
		roles:     make(map[core.Model]core.Role),
		libraries: make(map[string]*core.Module),
		refModels: make(map[string][]string),
	}
}

// Bind binds a model under name. It returns false, keeping the existing
// binding, when name is already bound.
func (r *Registry) Bind(name string, m core.Model, role core.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[name]; exists {
		r.logger.Warn("model already bound, keeping first binding", "model", name, "role", role)
		return false
	}
	b := &Binding{Name: name, Model: m, Role: role}
	if m != nil {
		b.ReferenceModel = m.ReferenceModel()
		if _, seen := r.roles[m]; !seen {
			r.roles[m] = role
		}
	}
	r.models[name] = b
	r.order = append(r.order, name)
	return true
}

// BindLibrary binds a library module under name with the same first-wins rule
// as Bind.
func (r *Registry) BindLibrary(name string, lib *core.Module) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.libraries[name]; exists {
		r.logger.Warn("library already bound, keeping first binding", "library", name)
		return false
	}
	r.libraries[name] = lib
	r.libOrder = append(r.libOrder, name)
	return true
}

// BindReferenceModel records that the model bound as model conforms to the
// reference model refName, making refName resolvable as a read-only extent
// over all its models. It returns true when refName is registered for the
// first time. Names already bound to a model are never shadowed.
func (r *Registry) BindReferenceModel(refName, model string) bool {
	if refName == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, clash := r.models[refName]; clash {
		r.logger.Warn("reference model name is bound to a model, ignoring", "reference_model", refName)
		return false
	}
	members, seen := r.refModels[refName]
	for _, m := range members {
		if m == model {
			return !seen
		}
	}
	r.refModels[refName] = append(members, model)
	return !seen
}

// Resolve returns the binding of a model name. Reference model names resolve
// to a read-only binding over every model bound with them.
func (r *Registry) Resolve(name string) (*Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.models[name]; ok {
		return b, nil
	}
	if members, ok := r.refModels[name]; ok {
		ext := &Extent{reg: r, name: name, members: append([]string(nil), members...)}
		return &Binding{Name: name, Model: ext, Role: core.RoleIn}, nil
	}
	return nil, &core.BindFault{Names: []string{name}, Msg: "model not bound"}
}

// ReferenceModels returns the registered reference model names, sorted.
func (r *Registry) ReferenceModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.refModels))
	for name := range r.refModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Library returns the module bound under a library name.
func (r *Registry) Library(name string) (*core.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lib, ok := r.libraries[name]
	if !ok {
		return nil, &core.BindFault{Names: []string{name}, Msg: "library not bound"}
	}
	return lib, nil
}

// RoleOf returns the role a model handle was bound with.
func (r *Registry) RoleOf(m core.Model) (core.Role, bool) {
	if m == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[m]
	return role, ok
}

// Require checks that every parameter and library is bound compatibly.
// Missing names are reported together in a single fault.
func (r *Registry) Require(params []core.Parameter, libraries []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []string
	for _, p := range params {
		if _, ok := r.models[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	for _, lib := range libraries {
		if _, ok := r.libraries[lib]; !ok {
			missing = append(missing, lib)
		}
	}
	if len(missing) > 0 {
		return &core.BindFault{Names: missing, Msg: "unresolved models or libraries"}
	}

	for _, p := range params {
		b := r.models[p.Name]
		if p.Metamodel != "" && b.ReferenceModel != "" && p.Metamodel != b.ReferenceModel {
			return &core.BindFault{
				Names: []string{p.Name},
				Msg:   fmt.Sprintf("reference model mismatch: declared %s, bound %s", p.Metamodel, b.ReferenceModel),
			}
		}
		if !p.Role.Accepts(b.Role) {
			return &core.BindFault{
				Names: []string{p.Name},
				Msg:   fmt.Sprintf("role mismatch: declared %s, bound %s", p.Role, b.Role),
			}
		}
	}
	return nil
}

// Bindings returns all model bindings in bind order.
func (r *Registry) Bindings() []*Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Binding, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Targets returns the writable bindings, keyed by name.
func (r *Registry) Targets() map[string]core.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]core.Model)
	for name, b := range r.models {
		if b.Role.Writable() {
			out[name] = b.Model
		}
	}
	return out
}

// Libraries returns the bound library names, sorted.
func (r *Registry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.libOrder...)
	sort.Strings(names)
	return names
}
