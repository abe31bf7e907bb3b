package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leapstack-labs/transvm/internal/cli/output"
	"github.com/leapstack-labs/transvm/internal/config"
	"github.com/leapstack-labs/transvm/internal/engine"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Watch     bool
	NoHistory bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a transformation module",
		Long: `Launch the module of the launch configuration against its models.

Source models are opened read-only, target models are created and saved once
the run completes. Overlays and libraries named in the configuration are
loaded before execution. Flags override the configuration file.`,
		Example: `  # Run the module configured in transvm.yaml
  transvm run

  # Run a module with an overlay in refining trace mode
  transvm run --module families.yaml --overlay trace.yaml --refining

  # Re-run whenever a module file changes
  transvm run --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringP("module", "m", "", "Module file to launch")
	cmd.Flags().StringSlice("overlay", nil, "Overlay module files, in precedence order")
	cmd.Flags().String("launcher", "", "Launcher to use (default: vm)")
	cmd.Flags().Bool("refining", false, "Enable refining trace mode")
	cmd.Flags().String("run-mode", "", "Run mode (run|debug)")
	cmd.Flags().String("refined-model", "", "Source model to refine in refining trace mode")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when module files change")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the state database")

	return cmd
}

// runSummary is the JSON form of a run result.
type runSummary struct {
	Module    string `json:"module"`
	Status    string `json:"status"`
	Executed  int    `json:"executed"`
	Value     string `json:"value,omitempty"`
	FaultKind string `json:"fault_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Duration  string `json:"duration"`
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := GetConfig(cmd.Context())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := GetLogger(cmd.Context())
	r := GetRenderer(cmd)

	engCfg := engine.Config{Logger: logger}
	if !opts.NoHistory {
		store, err := openStateStore(cfg.StatePath, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		engCfg.Store = store
	}
	eng := engine.New(engCfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.Watch {
		return launchOnce(ctx, eng, cfg, r)
	}

	if err := launchOnce(ctx, eng, cfg, r); err != nil {
		r.Error(err.Error())
	}
	return watch(ctx, cfg.ModuleFiles(), logger, func() {
		r.Muted("Change detected, re-running...")
		if err := launchOnce(ctx, eng, cfg, r); err != nil {
			r.Error(err.Error())
		}
	})
}

// launchOnce launches the configured module and reports the result. Faulted
// runs return their fault; cancellation is not an error.
func launchOnce(ctx context.Context, eng *engine.Engine, cfg *config.Config, r *output.Renderer) error {
	start := time.Now()
	mon := engine.NewContextMonitor(ctx)
	res, err := eng.Launch(ctx, cfg.Request(), mon)
	elapsed := time.Since(start).Round(time.Millisecond)
	if res == nil {
		res = &core.RunResult{Status: core.RunStatusFailed, Fault: err}
	}

	summary := runSummary{
		Module:    cfg.Module,
		Status:    string(res.Status),
		Executed:  res.Executed,
		FaultKind: string(res.FaultKind()),
		Duration:  elapsed.String(),
	}
	if res.Value != nil {
		summary.Value = fmt.Sprint(res.Value)
	}
	if err != nil {
		summary.Error = err.Error()
	}

	if r.EffectiveMode() == output.ModeJSON {
		if jerr := r.JSON(summary); jerr != nil {
			return jerr
		}
		return err
	}

	r.Printf("Run %s: %d operations in %s\n", r.Status(summary.Status), summary.Executed, summary.Duration)
	if summary.Value != "" {
		r.KeyValue("value", summary.Value)
	}
	if err != nil {
		var fault core.Fault
		if errors.As(err, &fault) {
			r.KeyValue("fault", string(fault.Kind()))
		}
		return fmt.Errorf("run failed: %w", err)
	}
	if res.Status == core.RunStatusCompleted {
		r.Success(fmt.Sprintf("Saved %d output model(s)", len(res.Outputs)))
	}
	return nil
}

// watch calls fn whenever one of files is written or created, until ctx is
// done. Bursts of events within 100ms trigger a single call.
func watch(ctx context.Context, files []string, logger *slog.Logger, fn func()) error {
	w, err := newFileWatcher(files, logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	logger.Info("watching module files", slog.Int("files", len(files)))
	return w.Run(ctx, 100*time.Millisecond, fn)
}
