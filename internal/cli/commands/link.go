package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/transvm/internal/callgraph"
	"github.com/leapstack-labs/transvm/internal/cli/output"
	"github.com/leapstack-labs/transvm/internal/linker"
	"github.com/leapstack-labs/transvm/internal/loader"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewLinkCommand creates the link command.
func NewLinkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link [module] [overlay...]",
		Short: "Show the effective module after applying overlays",
		Long: `Link a module with its overlays and show which module each block of
the effective module comes from.

Without arguments the configured module and overlays are linked. Later
overlays take precedence over earlier ones.`,
		Example: `  # Link the configured module and overlays
  transvm link

  # Link explicit files
  transvm link families.yaml trace.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				cfg, err := GetConfig(cmd.Context())
				if err != nil {
					return err
				}
				if cfg.Module == "" {
					return fmt.Errorf("no module given\nHint: pass files or set module in transvm.yaml")
				}
				files = cfg.ModuleFiles()[:1+len(cfg.Overlays)]
			}
			return runLink(cmd, files)
		},
	}
	return cmd
}

func runLink(cmd *cobra.Command, files []string) error {
	r := GetRenderer(cmd)

	mods, err := loadAll(cmd.Context(), files)
	if err != nil {
		return err
	}
	eff, err := linker.Link(mods[0], mods[1:]...)
	if err != nil {
		return err
	}
	graph, err := callgraph.Build(eff)
	if err != nil {
		return err
	}
	unreachable := make(map[string]bool)
	for _, name := range graph.Unreachable() {
		unreachable[name] = true
	}

	if r.EffectiveMode() == output.ModeJSON {
		blocks := make([]map[string]any, 0, len(eff.Order))
		for _, name := range eff.Order {
			b, _ := eff.Block(name)
			blocks = append(blocks, map[string]any{
				"name":      name,
				"origin":    eff.Origins[name],
				"ops":       len(b.Ops),
				"calls":     graph.Callees(name),
				"reachable": !unreachable[name],
			})
		}
		return r.JSON(map[string]any{
			"module":    eff.Name,
			"entry":     eff.Entry,
			"libraries": eff.Libraries,
			"blocks":    blocks,
			"recursion": graph.Cycle(),
		})
	}

	r.Header(1, "Effective module "+eff.Name)
	r.KeyValue("entry", eff.Entry)
	if len(mods) > 1 {
		names := make([]string, 0, len(mods)-1)
		for _, m := range mods[1:] {
			names = append(names, m.Name)
		}
		r.KeyValue("overlays", strings.Join(names, ", "))
	}
	if len(eff.Libraries) > 0 {
		r.KeyValue("libraries", strings.Join(eff.Libraries, ", "))
	}
	r.Println()

	rows := make([][]string, 0, len(eff.Order))
	for _, name := range eff.Order {
		b, _ := eff.Block(name)
		origin := eff.Origins[name]
		if origin != eff.Name {
			origin = r.Styles().Location.Render(origin)
		}
		calls := strings.Join(graph.Callees(name), ", ")
		if unreachable[name] {
			calls = r.Styles().Muted.Render("unreachable")
		}
		rows = append(rows, []string{name, origin, strconv.Itoa(len(b.Ops)), calls})
	}
	r.Table([]string{"Block", "Origin", "Ops", "Calls"}, rows)

	if cycle := graph.Cycle(); cycle != nil {
		r.Println()
		r.Println(r.Styles().Info.Render("Recursive calls: " + strings.Join(cycle, " -> ")))
	}
	return nil
}

// loadAll loads module files concurrently, keeping their order.
func loadAll(ctx context.Context, files []string) ([]*core.Module, error) {
	mods := make([]*core.Module, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			m, err := loader.LoadFile(f)
			if err != nil {
				return err
			}
			mods[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mods, nil
}
