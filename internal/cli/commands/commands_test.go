package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/transvm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"module", "overlay", "launcher", "refining", "run-mode", "refined-model", "watch", "no-history"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewInspectCommand(t *testing.T) {
	cmd := NewInspectCommand()

	assert.Equal(t, "inspect [file]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.Flags().Lookup("ops"))
}

func TestNewLinkCommand(t *testing.T) {
	cmd := NewLinkCommand()

	assert.Equal(t, "link [module] [overlay...]", cmd.Use)
	assert.NotEmpty(t, cmd.Example)
}

func TestNewRunsCommand(t *testing.T) {
	cmd := NewRunsCommand()

	assert.Equal(t, "runs", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	require.Len(t, cmd.Commands(), 1)
	assert.Equal(t, "show", cmd.Commands()[0].Name())
}

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{name: "release", version: "0.1.0", want: "transvm v0.1.0"},
		{name: "dev", version: "dev", want: "transvm vdev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		verbose  bool
		logDebug bool
		logWarn  bool
		wantJSON bool
	}{
		{name: "default is warn", logWarn: true},
		{name: "debug", level: "debug", logDebug: true, logWarn: true},
		{name: "error hides warnings", level: "error"},
		{name: "verbose forces debug", level: "error", verbose: true, logDebug: true, logWarn: true},
		{name: "json", level: "info", format: "json", logWarn: true, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level, tt.format, tt.verbose)
			ctx := context.Background()

			assert.Equal(t, tt.logDebug, logger.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.logWarn, logger.Enabled(ctx, slog.LevelWarn))

			logger.Error("boom")
			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"boom"`)
			} else {
				assert.Contains(t, buf.String(), "msg=boom")
			}
		})
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()

	assert.NotNil(t, GetLogger(ctx))

	logger := testutil.NewTestLogger(t)
	assert.Same(t, logger, GetLogger(WithLogger(ctx, logger)))
}

func TestFileWatcher(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "module.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("module: A\n"), 0o644))

	w, err := newFileWatcher([]string{watched}, testutil.NewTestLogger(t))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, 20*time.Millisecond, func() { changed <- struct{}{} })
	}()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("module: B\n"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change was not reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
