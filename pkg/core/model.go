package core

import "context"

// Model is an opaque handle to an object graph. Implementations are supplied
// by a ModelFactory; the VM only invokes these capabilities.
type Model interface {
	// Name is the location-independent name the factory opened the model as.
	Name() string
	// ReferenceModel is the identity of the model's metamodel.
	ReferenceModel() string
	// IsTarget reports whether the model was opened for writing.
	IsTarget() bool
	// NewElement creates an element of the given type.
	NewElement(typeName string) (Element, error)
	// ElementsOf lists elements of the given type in creation order.
	ElementsOf(typeName string) ([]Element, error)
}

// Element is a node of a model graph.
type Element interface {
	ID() string
	Type() string
	Model() Model
	// Get returns a feature value: nil, string, int64, float64, bool,
	// Element or []any.
	Get(feature string) (any, error)
	Set(feature string, value any) error
}

// ModelFactory opens and materializes models by storage location.
type ModelFactory interface {
	// OpenModel loads the model stored at location. Targets are writable.
	OpenModel(ctx context.Context, location, referenceModel string, asTarget bool) (Model, error)
	// NewModel creates an empty writable model for location. Whatever is
	// stored there is replaced when the model is saved.
	NewModel(ctx context.Context, location, referenceModel string) (Model, error)
	SaveModel(ctx context.Context, model Model, location string) error
}
