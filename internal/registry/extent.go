package registry

import (
	"fmt"

	"github.com/leapstack-labs/transvm/pkg/core"
)

// Extent is the read-only view of a reference model: the elements of every
// model bound with it, in bind order of the models.
type Extent struct {
	reg     *Registry
	name    string
	members []string
}

func (x *Extent) Name() string           { return x.name }
func (x *Extent) ReferenceModel() string { return "" }
func (x *Extent) IsTarget() bool         { return false }

// Models returns the names of the models in the extent.
func (x *Extent) Models() []string { return append([]string(nil), x.members...) }

func (x *Extent) NewElement(string) (core.Element, error) {
	return nil, fmt.Errorf("reference model %s is read-only", x.name)
}

// ElementsOf lists the elements of typeName across the extent's models.
func (x *Extent) ElementsOf(typeName string) ([]core.Element, error) {
	var out []core.Element
	for _, name := range x.members {
		b, err := x.reg.Resolve(name)
		if err != nil {
			return nil, err
		}
		elems, err := b.Model.ElementsOf(typeName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, elems...)
	}
	return out, nil
}
