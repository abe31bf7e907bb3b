// Package starlark turns Starlark scripts into helper libraries for
// transformation modules. Every exported callable of a .star file becomes a
// native function of a library module; blocks call it as lib.name.
package starlark

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/transvm/pkg/core"
	"go.starlark.net/starlark"
)

// Ext is the file extension of script libraries.
const Ext = ".star"

// IsScript reports whether a library locator names a script library.
func IsScript(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

// LoadFile loads the script at path as library name. An empty name derives
// the library name from the file name.
func LoadFile(name, path string, logger *slog.Logger) (*core.Module, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: library paths come from the launch config
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}
	if name == "" {
		name = LibraryName(path)
	}
	return Load(name, path, content, logger)
}

// Load executes src and returns a library module named name whose natives
// are the script's exported callables. Globals are frozen after execution so
// the natives can be called from concurrent runs.
func Load(name, filename string, src []byte, logger *slog.Logger) (*core.Module, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := validateName(name); err != nil {
		return nil, &LoadError{File: filename, Message: err.Error()}
	}

	thread := &starlark.Thread{
		Name: "load:" + name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(msg, slog.String("library", name))
		},
	}
	globals, err := starlark.ExecFile(thread, filename, src, predeclared()) //nolint:staticcheck // SA1019: will migrate to ExecFileOptions later
	if err != nil {
		return nil, &LoadError{File: filename, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}
	globals.Freeze()

	natives := make(map[string]core.NativeFunc)
	for _, export := range exports(globals) {
		fn, ok := globals[export].(starlark.Callable)
		if !ok {
			continue
		}
		natives[export] = native(name, fn, logger)
	}
	logger.Debug("loaded script library", slog.String("library", name), slog.Int("functions", len(natives)))

	mod := core.NewModule(name, "", nil, nil, nil, nil)
	mod.Natives = natives
	return mod, nil
}

// exports lists the global names not starting with an underscore, sorted.
func exports(globals starlark.StringDict) []string {
	names := make([]string, 0, len(globals))
	for n := range globals {
		if !strings.HasPrefix(n, "_") {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// native adapts a Starlark callable. Each call runs on its own thread, which
// is cancelled when ctx is.
func native(lib string, fn starlark.Callable, logger *slog.Logger) core.NativeFunc {
	return func(ctx context.Context, args []any) (any, error) {
		thread := &starlark.Thread{
			Name: lib + "." + fn.Name(),
			Print: func(_ *starlark.Thread, msg string) {
				logger.Info(msg, slog.String("library", lib))
			},
		}
		stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
		defer stop()

		sargs := make(starlark.Tuple, len(args))
		for i, a := range args {
			v, err := ToStarlark(a)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			sargs[i] = v
		}
		result, err := starlark.Call(thread, fn, sargs, nil)
		if err != nil {
			return nil, err
		}
		return ToGo(result)
	}
}

// predeclared are the globals every script sees besides the Starlark
// universe.
func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"element_id": starlark.NewBuiltin("element_id", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var e Element
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &e); err != nil {
				return nil, err
			}
			return starlark.String(e.e.ID()), nil
		}),
		"element_type": starlark.NewBuiltin("element_type", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var e Element
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &e); err != nil {
				return nil, err
			}
			return starlark.String(e.e.Type()), nil
		}),
	}
}

// validateName checks that a library name is an identifier.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("library name cannot be empty")
	}
	for i, r := range name {
		if i == 0 {
			if !isLetter(r) && r != '_' {
				return fmt.Errorf("library name must start with letter or underscore: %s", name)
			}
		} else if !isLetter(r) && !isDigit(r) && r != '_' {
			return fmt.Errorf("library name contains invalid character: %s", name)
		}
	}
	return nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// LoadError represents an error loading a script library.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", filepath.Base(e.File), e.Message)
}
