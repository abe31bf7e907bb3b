package starlark

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/transvm/internal/modelstore"
	"github.com/leapstack-labs/transvm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const namesScript = `
def full_name(first, last):
    """Joins a first and last name."""
    return first + " " + last

def initials(person):
    return person.first[0] + person.last[0]

def kind(e):
    return element_type(e) + ":" + element_id(e)

def spin():
    for _ in range(1000000000):
        pass

def _private():
    return 1

GREETING = "hi"
`

func TestLoad_Natives(t *testing.T) {
	lib, err := Load("names", "names.star", []byte(namesScript), testutil.NewTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "names", lib.Name)
	assert.Empty(t, lib.Blocks)
	assert.Len(t, lib.Natives, 4)

	_, ok := lib.Native("_private")
	assert.False(t, ok, "private functions are not exported")
	_, ok = lib.Native("GREETING")
	assert.False(t, ok, "only callables become natives")

	fn, ok := lib.Native("full_name")
	require.True(t, ok)
	got, err := fn(context.Background(), []any{"Ada", "Lovelace"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got)
}

func TestLoad_ElementArguments(t *testing.T) {
	m := modelstore.NewModel("people", "Persons", true)
	e, err := m.NewElement("Person")
	require.NoError(t, err)
	require.NoError(t, e.Set("first", "Grace"))
	require.NoError(t, e.Set("last", "Hopper"))

	lib, err := Load("names", "names.star", []byte(namesScript), nil)
	require.NoError(t, err)

	initials, _ := lib.Native("initials")
	got, err := initials(context.Background(), []any{e})
	require.NoError(t, err)
	assert.Equal(t, "GH", got)

	kind, _ := lib.Native("kind")
	got, err = kind(context.Background(), []any{e})
	require.NoError(t, err)
	assert.Equal(t, "Person:e1", got)
}

func TestLoad_CallErrors(t *testing.T) {
	lib, err := Load("names", "names.star", []byte(namesScript), nil)
	require.NoError(t, err)

	fullName, _ := lib.Native("full_name")
	_, err = fullName(context.Background(), []any{"only one"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = fullName(context.Background(), []any{map[string]int{}, "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")
}

func TestLoad_CancelledCall(t *testing.T) {
	lib, err := Load("names", "names.star", []byte(namesScript), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spin, _ := lib.Native("spin")
	_, err = spin(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lib     string
		src     string
		wantErr string
	}{
		{name: "syntax error", lib: "bad", src: "def broken(:\n", wantErr: "Starlark execution error"},
		{name: "runtime error", lib: "bad", src: "x = 1 // 0\n", wantErr: "Starlark execution error"},
		{name: "empty name", lib: "", src: "", wantErr: "cannot be empty"},
		{name: "leading digit", lib: "1lib", src: "", wantErr: "must start with letter"},
		{name: "invalid character", lib: "my-lib", src: "", wantErr: "invalid character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.lib, "lib.star", []byte(tt.src), nil)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strings.star")
	require.NoError(t, os.WriteFile(path, []byte("def shout(s):\n    return s.upper() + \"!\"\n"), 0o600))

	lib, err := LoadFile("", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "strings", lib.Name)

	shout, ok := lib.Native("shout")
	require.True(t, ok)
	got, err := shout(context.Background(), []any{"hey"})
	require.NoError(t, err)
	assert.Equal(t, "HEY!", got)

	lib, err = LoadFile("text", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "text", lib.Name)

	_, err = LoadFile("", filepath.Join(dir, "missing.star"), nil)
	assert.ErrorContains(t, err, "failed to read file")
}

func TestIsScript(t *testing.T) {
	assert.True(t, IsScript("lib/strings.star"))
	assert.True(t, IsScript("STRINGS.STAR"))
	assert.False(t, IsScript("strings.yaml"))
	assert.False(t, IsScript("star"))
}

func TestDescribe(t *testing.T) {
	fns, err := Describe("names.star", []byte(namesScript+"\ndef opts(a, b=None, *rest, **kw):\n    pass\n"))
	require.NoError(t, err)

	require.Len(t, fns, 5)
	assert.Equal(t, "full_name", fns[0].Name)
	assert.Equal(t, "Joins a first and last name.", fns[0].Docstring)
	assert.Equal(t, 2, fns[0].Line)
	assert.Equal(t, "full_name(first, last)", fns[0].Signature())
	assert.Equal(t, "opts(a, b=None, *rest, **kw)", fns[4].Signature())

	_, err = Describe("bad.star", []byte("def (:"))
	assert.Error(t, err)
}
