// Package loader decodes transformation modules from their YAML encoding into
// immutable *core.Module values.
//
// A module document looks like:
//
//	module: Families2Persons
//	models:
//	  - {name: IN, metamodel: Families, role: in}
//	  - {name: OUT, metamodel: Persons, role: out}
//	blocks:
//	  - name: main
//	    ops:
//	      - allof Member IN
//	      - iterate done
//	      - {op: new, args: [Person, OUT]}
//	      - done: pushnull
//
// Loading is all-or-nothing: any malformed or inconsistent content yields a
// *core.LoadFault and no module.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/leapstack-labs/transvm/pkg/core"
	"gopkg.in/yaml.v3"
)

// Load decodes a single module document from r.
func Load(r io.Reader) (*core.Module, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc moduleDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &core.LoadFault{Index: -1, Msg: "empty module encoding"}
		}
		var lf *core.LoadFault
		if errors.As(err, &lf) {
			return nil, lf
		}
		return nil, &core.LoadFault{Index: -1, Msg: "malformed module encoding", Err: err}
	}
	return build(&doc)
}

// LoadFile loads a module from a file on disk.
func LoadFile(path string) (*core.Module, error) {
	f, err := os.Open(path) //nolint:gosec // G304: module paths come from the launch config
	if err != nil {
		return nil, &core.LoadFault{Index: -1, Pos: path, Msg: "cannot open module", Err: err}
	}
	defer func() { _ = f.Close() }()
	m, err := Load(f)
	return m, inFile(err, path)
}

// LoadFS loads a module from a file in fsys.
func LoadFS(fsys fs.FS, name string) (*core.Module, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, &core.LoadFault{Index: -1, Pos: name, Msg: "cannot open module", Err: err}
	}
	defer func() { _ = f.Close() }()
	m, err := Load(f)
	return m, inFile(err, name)
}

// inFile prefixes the position of a load fault with the source file name.
func inFile(err error, file string) error {
	var lf *core.LoadFault
	if errors.As(err, &lf) {
		if lf.Pos == "" {
			lf.Pos = file
		} else {
			lf.Pos = file + ":" + lf.Pos
		}
	}
	return err
}

type moduleDoc struct {
	Module    string     `yaml:"module"`
	Entry     string     `yaml:"entry"`
	Models    []paramDoc `yaml:"models"`
	Libraries []string   `yaml:"libraries"`
	Externals []string   `yaml:"externals"`
	Blocks    []blockDoc `yaml:"blocks"`
}

type paramDoc struct {
	Name      string `yaml:"name"`
	Metamodel string `yaml:"metamodel"`
	Role      string `yaml:"role"`
}

type blockDoc struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params"`
	Ops    []opDoc  `yaml:"ops"`
}

// opDoc is one operation in either its compact scalar form
// ("[label:] opcode args...") or its mapping form.
type opDoc struct {
	Op    string
	Args  []string
	Label string
	Pos   string
}

var opFields = map[string]bool{"op": true, "args": true, "label": true, "pos": true}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *opDoc) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if err := o.parseCompact(n.Value); err != nil {
			return nodeFault(n, err.Error())
		}
	case yaml.MappingNode:
		// "label: opcode args" is a labelled compact operation.
		if len(n.Content) == 2 && !opFields[n.Content[0].Value] {
			key, val := n.Content[0], n.Content[1]
			if val.Kind != yaml.ScalarNode {
				return nodeFault(val, fmt.Sprintf("operation labelled %q must be a compact string", key.Value))
			}
			if err := o.parseCompact(val.Value); err != nil {
				return nodeFault(val, err.Error())
			}
			if o.Label != "" {
				return nodeFault(val, fmt.Sprintf("operation has two labels (%s, %s)", key.Value, o.Label))
			}
			o.Label = key.Value
			break
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			switch key.Value {
			case "op":
				o.Op = val.Value
			case "label":
				o.Label = val.Value
			case "pos":
				o.Pos = val.Value
			case "args":
				if val.Kind != yaml.SequenceNode {
					return nodeFault(val, "args must be a sequence")
				}
				for _, a := range val.Content {
					if a.Kind != yaml.ScalarNode {
						return nodeFault(a, "operation argument must be a scalar")
					}
					o.Args = append(o.Args, a.Value)
				}
			default:
				return nodeFault(key, fmt.Sprintf("unknown operation field %q", key.Value))
			}
		}
	default:
		return nodeFault(n, "operation must be a string or a mapping")
	}
	if o.Op == "" {
		return nodeFault(n, "operation has no opcode")
	}
	if o.Pos == "" {
		o.Pos = fmt.Sprintf("%d:%d", n.Line, n.Column)
	}
	return nil
}

func (o *opDoc) parseCompact(s string) error {
	tokens, err := splitOperation(s)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return errors.New("empty operation")
	}
	if head := tokens[0]; !head.quoted && strings.HasSuffix(head.text, ":") {
		o.Label = strings.TrimSuffix(head.text, ":")
		tokens = tokens[1:]
		if len(tokens) == 0 {
			return fmt.Errorf("label %q has no operation", o.Label)
		}
	}
	if tokens[0].quoted {
		return fmt.Errorf("opcode %q must not be quoted", tokens[0].text)
	}
	o.Op = tokens[0].text
	for _, t := range tokens[1:] {
		o.Args = append(o.Args, t.text)
	}
	return nil
}

func nodeFault(n *yaml.Node, msg string) error {
	return &core.LoadFault{Index: -1, Pos: fmt.Sprintf("%d:%d", n.Line, n.Column), Msg: msg}
}
