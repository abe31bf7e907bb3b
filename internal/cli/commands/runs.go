package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/transvm/internal/cli/output"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long:  `List the runs recorded in the state database, newest first.`,
		Example: `  # Show the last 20 runs
  transvm runs

  # Show one run
  transvm runs show 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunsList(cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, args[0])
		},
	})
	return cmd
}

func runRunsList(cmd *cobra.Command, limit int) error {
	cfg, err := GetConfig(cmd.Context())
	if err != nil {
		return err
	}
	store, err := openStateStore(cfg.StatePath, GetLogger(cmd.Context()))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	r := GetRenderer(cmd)
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]runJSON, 0, len(runs))
		for _, run := range runs {
			out = append(out, toRunJSON(run))
		}
		return r.JSON(out)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.Module,
			run.Mode,
			r.Status(string(run.Status)),
			strconv.Itoa(run.Executed),
			run.StartedAt.Local().Format(time.DateTime),
			duration(run),
		})
	}
	r.Table([]string{"ID", "Module", "Mode", "Status", "Executed", "Started", "Duration"}, rows)
	return nil
}

func runRunsShow(cmd *cobra.Command, id string) error {
	cfg, err := GetConfig(cmd.Context())
	if err != nil {
		return err
	}
	store, err := openStateStore(cfg.StatePath, GetLogger(cmd.Context()))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}

	r := GetRenderer(cmd)
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(toRunJSON(run))
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("module", run.Module)
	r.KeyValue("mode", run.Mode)
	r.KeyValue("status", r.Status(string(run.Status)))
	r.KeyValue("executed", strconv.Itoa(run.Executed))
	r.KeyValue("started", run.StartedAt.Local().Format(time.DateTime))
	r.KeyValue("duration", duration(run))
	if run.Error != "" {
		r.KeyValue("error", r.Styles().Error.Render(run.Error))
	}
	return nil
}

type runJSON struct {
	ID          string     `json:"id"`
	Module      string     `json:"module"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	Executed    int        `json:"executed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func toRunJSON(run *core.Run) runJSON {
	return runJSON{
		ID:          run.ID,
		Module:      run.Module,
		Mode:        run.Mode,
		Status:      string(run.Status),
		Executed:    run.Executed,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func duration(run *core.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return fmt.Sprint(run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
}
