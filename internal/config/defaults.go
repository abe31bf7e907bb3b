package config

// Default configuration values.
const (
	DefaultLauncher  = "vm"
	DefaultStateFile = ".transvm/state.db"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
	DefaultRunMode   = "run"
)

// ConfigFileName is the name of the launch configuration file.
const ConfigFileName = "transvm.yaml"

// ConfigFileNameAlt is the alternate name of the launch configuration file.
const ConfigFileNameAlt = "transvm.yml"

// EnvPrefix prefixes environment variables that override configuration
// keys. A double underscore separates nested keys:
// TRANSVM_OPTIONS__RUN_MODE sets options.run_mode.
const EnvPrefix = "TRANSVM_"

func defaults() map[string]any {
	return map[string]any{
		"launcher":         DefaultLauncher,
		"state_path":       DefaultStateFile,
		"log_level":        DefaultLogLevel,
		"log_format":       DefaultLogFormat,
		"verbose":          false,
		"options.run_mode": DefaultRunMode,
	}
}
