// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// CopyModule copies attribute x of every A element of IN into a new A
// element of OUT, through the strings.shout script function.
const CopyModule = `
module: CopyX
models:
  - {name: IN, metamodel: MM, role: in}
  - {name: OUT, metamodel: MM, role: out}
libraries: [strings]
blocks:
  - name: main
    ops:
      - allof A IN
      - iterate done
      - body: store a
      - new A OUT
      - load a
      - get x
      - call strings.shout 1
      - set x
      - enditerate
      - done: pushnull
`

// ConstantOverlay replaces nothing of CopyModule but adds a helper block.
const ConstantOverlay = `
module: Helpers
blocks:
  - name: helper
    ops:
      - push "constant"
`

// StringsLibrary is the strings script library.
const StringsLibrary = `
def shout(s):
    """Upper-cases s and adds an exclamation mark."""
    return s.upper() + "!"
`

// InputModel is the source model document.
const InputModel = `
metamodel: MM
elements:
  - id: a1
    type: A
    features: {x: hello}
  - id: a2
    type: A
    features: {x: world}
`

// Config is the launch configuration of the test project.
const Config = `
module: copy.yaml
libraries:
  strings: strings.star
models:
  - {name: IN, metamodel: MM, role: in, path: models/in.yaml}
  - {name: OUT, metamodel: MM, role: out, path: models/out.yaml}
state_path: .transvm/state.db
`

// SetupTestProject creates a temporary project with a module, an overlay,
// a script library, a source model and a transvm.yaml. It returns the
// project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"transvm.yaml":   Config,
		"copy.yaml":      CopyModule,
		"helpers.yaml":   ConstantOverlay,
		"strings.star":   StringsLibrary,
		"models/in.yaml": InputModel,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}
