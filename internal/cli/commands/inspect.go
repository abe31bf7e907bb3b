package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/leapstack-labs/transvm/internal/cli/output"
	"github.com/leapstack-labs/transvm/internal/loader"
	"github.com/leapstack-labs/transvm/internal/starlark"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/spf13/cobra"
)

// InspectOptions holds options for the inspect command.
type InspectOptions struct {
	Ops bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the contents of a module or script library",
		Long: `Load a module and show its parameters, libraries and blocks.

Without an argument the configured module is inspected. Script libraries
(.star files) are listed by function.`,
		Example: `  # Inspect the configured module
  transvm inspect

  # Show every operation of a module
  transvm inspect families.yaml --ops

  # List the functions of a script library
  transvm inspect strings.star`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := GetConfig(cmd.Context())
				if err != nil {
					return err
				}
				if cfg.Module == "" {
					return fmt.Errorf("no module given\nHint: pass a file or set module in transvm.yaml")
				}
				path = cfg.ModuleFiles()[0]
			}
			return runInspect(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Ops, "ops", false, "List the operations of every block")

	return cmd
}

func runInspect(cmd *cobra.Command, path string, opts *InspectOptions) error {
	r := GetRenderer(cmd)
	if starlark.IsScript(path) {
		return inspectScript(r, path)
	}

	mod, err := loader.LoadFile(path)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(moduleJSON(mod, opts.Ops))
	}

	styles := r.Styles()
	r.Header(1, "Module "+mod.Name)
	r.KeyValue("entry", mod.Entry)
	if len(mod.Libraries) > 0 {
		r.KeyValue("libraries", strings.Join(mod.Libraries, ", "))
	}
	if len(mod.Externals) > 0 {
		r.KeyValue("externals", strings.Join(mod.Externals, ", "))
	}

	if len(mod.Parameters) > 0 {
		r.Println()
		r.Header(2, "Models")
		rows := make([][]string, 0, len(mod.Parameters))
		for _, p := range mod.Parameters {
			rows = append(rows, []string{p.Name, string(p.Role), p.Metamodel})
		}
		r.Table([]string{"Name", "Role", "Metamodel"}, rows)
	}

	r.Println()
	r.Header(2, "Blocks")
	rows := make([][]string, 0, len(mod.Blocks))
	for _, b := range mod.Blocks {
		rows = append(rows, []string{b.Name, strings.Join(b.Params, ", "), strconv.Itoa(len(b.Ops)), strconv.Itoa(len(b.Labels))})
	}
	r.Table([]string{"Block", "Params", "Ops", "Labels"}, rows)

	if opts.Ops {
		for _, b := range mod.Blocks {
			r.Println()
			r.Println(styles.Header2.Render(b.Name + ":"))
			for i, op := range b.Ops {
				r.Printf("  %4d  %s", i, op.String())
				if op.Pos != "" {
					r.Printf("  %s", styles.Muted.Render(op.Pos))
				}
				r.Println()
			}
		}
	}
	return nil
}

func inspectScript(r *output.Renderer, path string) error {
	src, err := os.ReadFile(path) //nolint:gosec // G304: path is given by the user
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	fns, err := starlark.Describe(path, src)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := libraryInfo{Library: starlark.LibraryName(path), Functions: make([]functionJSON, 0, len(fns))}
		for _, fn := range fns {
			out.Functions = append(out.Functions, functionJSON{
				Name:      fn.Name,
				Signature: fn.Signature(),
				Line:      fn.Line,
				Doc:       fn.Docstring,
			})
		}
		return r.JSON(out)
	}

	r.Header(1, "Library "+starlark.LibraryName(path))
	rows := make([][]string, 0, len(fns))
	for _, fn := range fns {
		doc, _, _ := strings.Cut(fn.Docstring, "\n")
		rows = append(rows, []string{fn.Signature(), strconv.Itoa(fn.Line), doc})
	}
	r.Table([]string{"Function", "Line", "Doc"}, rows)
	return nil
}

type functionJSON struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Line      int    `json:"line"`
	Doc       string `json:"doc,omitempty"`
}

type libraryInfo struct {
	Library   string         `json:"library"`
	Functions []functionJSON `json:"functions"`
}

type opJSON struct {
	Label string `json:"label,omitempty"`
	Op    string `json:"op"`
	Pos   string `json:"pos,omitempty"`
}

type blockJSON struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
	Ops    int      `json:"ops"`
	Code   []opJSON `json:"code,omitempty"`
}

type paramJSON struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Metamodel string `json:"metamodel,omitempty"`
}

type moduleInfo struct {
	Name      string      `json:"name"`
	Entry     string      `json:"entry"`
	Models    []paramJSON `json:"models"`
	Libraries []string    `json:"libraries,omitempty"`
	Externals []string    `json:"externals,omitempty"`
	Blocks    []blockJSON `json:"blocks"`
}

func moduleJSON(mod *core.Module, withOps bool) moduleInfo {
	info := moduleInfo{
		Name:      mod.Name,
		Entry:     mod.Entry,
		Models:    make([]paramJSON, 0, len(mod.Parameters)),
		Libraries: mod.Libraries,
		Externals: mod.Externals,
		Blocks:    make([]blockJSON, 0, len(mod.Blocks)),
	}
	for _, p := range mod.Parameters {
		info.Models = append(info.Models, paramJSON{Name: p.Name, Role: string(p.Role), Metamodel: p.Metamodel})
	}
	for _, b := range mod.Blocks {
		bj := blockJSON{Name: b.Name, Params: b.Params, Ops: len(b.Ops)}
		if withOps {
			for _, op := range b.Ops {
				o := op
				o.Label = ""
				bj.Code = append(bj.Code, opJSON{Label: op.Label, Op: o.String(), Pos: op.Pos})
			}
		}
		info.Blocks = append(info.Blocks, bj)
	}
	return info
}
