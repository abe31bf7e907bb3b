package modelstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/transvm/pkg/core"
	"gopkg.in/yaml.v3"
)

// A model document:
//
//	metamodel: Families
//	elements:
//	  - id: f1
//	    type: Family
//	    features:
//	      lastName: March
//	      father: {ref: m1}
//	      daughters: [{ref: m2}, {ref: m3}]
type modelDoc struct {
	Metamodel string       `yaml:"metamodel"`
	Elements  []elementDoc `yaml:"elements"`
}

type elementDoc struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Features map[string]any `yaml:"features,omitempty"`
}

// FileFactory opens and saves YAML model documents. JSON documents load as
// well since JSON is a YAML subset.
type FileFactory struct{}

// OpenModel reads the document at location. Targets whose file does not exist
// yet open as empty models.
func (f *FileFactory) OpenModel(_ context.Context, location, referenceModel string, asTarget bool) (core.Model, error) {
	path := trimScheme(location, SchemeFile)
	data, err := os.ReadFile(path) //nolint:gosec // G304: model paths come from the launch config
	if errors.Is(err, fs.ErrNotExist) && asTarget {
		return NewModel(nameOf(path), referenceModel, true), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}

	m, err := Decode(bytes.NewReader(data), nameOf(path), referenceModel)
	if err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	m.SetTarget(asTarget)
	return m, nil
}

// NewModel returns an empty model named after the file at location. The file
// is overwritten when the model is saved.
func (f *FileFactory) NewModel(_ context.Context, location, referenceModel string) (core.Model, error) {
	return NewModel(nameOf(trimScheme(location, SchemeFile)), referenceModel, true), nil
}

// SaveModel writes the model as a YAML document at location.
func (f *FileFactory) SaveModel(_ context.Context, model core.Model, location string) error {
	m, ok := model.(*Model)
	if !ok {
		return fmt.Errorf("cannot save %T as a model document", model)
	}
	path := trimScheme(location, SchemeFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write model %s: %w", path, err)
	}
	return nil
}

// Decode reads a model document. The returned model is read-only. An empty
// document yields an empty model.
func Decode(r io.Reader, name, referenceModel string) (*Model, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc modelDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if referenceModel != "" && doc.Metamodel != "" && doc.Metamodel != referenceModel {
		return nil, fmt.Errorf("document conforms to %s, not %s", doc.Metamodel, referenceModel)
	}
	if referenceModel == "" {
		referenceModel = doc.Metamodel
	}

	m := NewModel(name, referenceModel, false)
	m.mu.Lock()
	defer m.mu.Unlock()

	elems := make([]*Element, len(doc.Elements))
	for i, ed := range doc.Elements {
		if ed.Type == "" {
			return nil, fmt.Errorf("element %d has no type", i)
		}
		e, err := m.addLocked(ed.ID, ed.Type)
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	for i, ed := range doc.Elements {
		for _, feature := range sortedKeys(ed.Features) {
			v, err := decodeValue(m, ed.Features[feature])
			if err != nil {
				return nil, fmt.Errorf("element %s feature %s: %w", elems[i].id, feature, err)
			}
			elems[i].setLocked(feature, v)
		}
	}
	return m, nil
}

// Encode writes m as a model document.
func Encode(w io.Writer, m *Model) error {
	m.mu.RLock()
	doc := modelDoc{Metamodel: m.refModel, Elements: make([]elementDoc, 0, len(m.elements))}
	for _, e := range m.elements {
		ed := elementDoc{ID: e.id, Type: e.typ}
		if len(e.order) > 0 {
			ed.Features = make(map[string]any, len(e.order))
			for _, feature := range e.order {
				ed.Features[feature] = encodeValue(m, e.features[feature])
			}
		}
		doc.Elements = append(doc.Elements, ed)
	}
	m.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode model %s: %w", m.name, err)
	}
	return enc.Close()
}

func encodeValue(owner *Model, v any) any {
	switch x := v.(type) {
	case core.Element:
		ref := map[string]string{"ref": x.ID()}
		if x.Model() != core.Model(owner) {
			ref["model"] = x.Model().Name()
		}
		return ref
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = encodeValue(owner, item)
		}
		return out
	}
	return v
}

// decodeValue converts a decoded YAML value, resolving {ref: id} against m.
// The caller holds m.mu.
func decodeValue(m *Model, v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		id, ok := x["ref"].(string)
		if !ok {
			return nil, errors.New("mapping values must be {ref: <id>}")
		}
		if other, ok := x["model"].(string); ok && other != m.name {
			return nil, fmt.Errorf("reference %s into model %s cannot be resolved", id, other)
		}
		e, ok := m.byID[id]
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q", id)
		}
		return e, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			d, err := decodeValue(m, item)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	}
	return Normalize(v)
}
