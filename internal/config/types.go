// Package config loads launch configurations. A launch configuration names
// the module to run, its overlays and libraries, the models to bind and where
// they are stored.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/transvm/internal/engine"
	"github.com/leapstack-labs/transvm/pkg/core"
	"github.com/leapstack-labs/transvm/pkg/launcher"
)

// ModelConfig binds one model parameter.
type ModelConfig struct {
	Name      string `koanf:"name"`
	Metamodel string `koanf:"metamodel"`
	Role      string `koanf:"role"` // in, out, inout
	Path      string `koanf:"path"`
}

// OptionsConfig holds launch options.
type OptionsConfig struct {
	RefiningTraceMode bool           `koanf:"refining_trace_mode"`
	RunMode           string         `koanf:"run_mode"`
	RefinedModel      string         `koanf:"refined_model"`
	Extensions        map[string]any `koanf:"extensions"`
}

// Config holds a launch configuration plus the CLI's ambient settings.
type Config struct {
	Module    string            `koanf:"module"`
	Overlays  []string          `koanf:"overlays"`
	Libraries map[string]string `koanf:"libraries"`
	Launcher  string            `koanf:"launcher"`
	Models    []ModelConfig     `koanf:"models"`
	// Paths holds extra storage locations, such as NAME_refined.
	Paths   map[string]string `koanf:"paths"`
	Options OptionsConfig     `koanf:"options"`

	StatePath string `koanf:"state_path"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	Verbose   bool   `koanf:"verbose"`

	// Dir is the directory relative locations are resolved against: the
	// config file's directory, or the working directory.
	Dir string `koanf:"-"`
}

// Validate checks if the configuration can be launched.
func (c *Config) Validate() error {
	if c.Module == "" {
		return fmt.Errorf("module is required\nHint: Set module in transvm.yaml or pass --module")
	}
	if !launcher.IsRegistered(c.Launcher) {
		return &launcher.UnknownLauncherError{Name: c.Launcher, Available: launcher.List()}
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d]: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("models[%d]: duplicate model %q", i, m.Name)
		}
		seen[m.Name] = true
		if _, err := core.ParseRole(m.Role); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
		if m.Path == "" {
			return fmt.Errorf("model %s: path is required", m.Name)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (debug|info|warn|error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (text|json)", c.LogFormat)
	}
	return nil
}

// Request converts the configuration into a launch request. Locations are
// converted with engine.ConvertLocation against Dir.
func (c *Config) Request() engine.Request {
	req := engine.Request{
		Launcher:  c.Launcher,
		Module:    c.resolve(c.Module),
		Libraries: make(map[string]string, len(c.Libraries)),
		Sources:   make(map[string]string),
		Targets:   make(map[string]string),
		InOut:     make(map[string]string),
		Paths:     make(map[string]string, len(c.Models)+len(c.Paths)),
		Options: core.Options{
			RefiningTraceMode: c.Options.RefiningTraceMode,
			RunMode:           core.ParseRunMode(c.Options.RunMode),
			RefinedModel:      c.Options.RefinedModel,
			Extensions:        c.Options.Extensions,
		},
	}
	for _, o := range c.Overlays {
		req.Overlays = append(req.Overlays, c.resolve(o))
	}
	for name, loc := range c.Libraries {
		req.Libraries[name] = c.resolve(loc)
	}
	for name, loc := range c.Paths {
		req.Paths[name] = engine.ConvertLocation(loc, c.Dir)
	}
	for _, m := range c.Models {
		role, _ := core.ParseRole(m.Role)
		switch role {
		case core.RoleIn:
			req.Sources[m.Name] = m.Metamodel
		case core.RoleOut:
			req.Targets[m.Name] = m.Metamodel
		case core.RoleInOut:
			req.InOut[m.Name] = m.Metamodel
		}
		req.Paths[m.Name] = engine.ConvertLocation(m.Path, c.Dir)
	}
	return req
}

// ModuleFiles lists the module, overlay and library files of the
// configuration, resolved against Dir.
func (c *Config) ModuleFiles() []string {
	files := []string{c.resolve(c.Module)}
	for _, o := range c.Overlays {
		files = append(files, c.resolve(o))
	}
	names := make([]string, 0, len(c.Libraries))
	for n := range c.Libraries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		files = append(files, c.resolve(c.Libraries[n]))
	}
	return files
}

// resolve resolves a module locator against Dir.
func (c *Config) resolve(path string) string {
	return resolvePathRelativeTo(path, c.Dir)
}
