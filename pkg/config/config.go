// Package config loads the vaspflow application configuration from YAML
// with environment variable overrides. External tool locations and the
// vdW kernel data path are injected here so that calculator construction
// never has to consult the process environment directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	VASP     VASPConfig     `yaml:"vasp" json:"vasp"`
	Paths    PathsConfig    `yaml:"paths" json:"paths"`
	Analysis AnalysisConfig `yaml:"analysis" json:"analysis"`
	Workflow WorkflowConfig `yaml:"workflow" json:"workflow"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// VASPConfig holds everything needed to launch the external calculator
type VASPConfig struct {
	// Command is the VASP launch command, e.g. "mpirun -np 64 vasp_std"
	Command string `yaml:"command" json:"command"`
	// GammaCommand is an optional gamma-point-only binary used when the
	// resolved mesh is 1x1x1; empty means Command is always used
	GammaCommand string `yaml:"gammaCommand" json:"gammaCommand"`
	// PseudoDir is the root of the pseudopotential library
	PseudoDir string `yaml:"pseudoDir" json:"pseudoDir"`
	// VdwKernelDir points at the vdW reference-data directory. Leave empty
	// when no vdW functionals are used; requesting one with this unset is
	// a fatal configuration error at calculator-configuration time.
	VdwKernelDir string `yaml:"vdwKernelDir" json:"vdwKernelDir"`
}

// PathsConfig holds filesystem layout settings
type PathsConfig struct {
	// ScratchRoot is where per-job run directories are created
	ScratchRoot string `yaml:"scratchRoot" json:"scratchRoot"`
	// PresetDir is searched for named calculator presets
	PresetDir string `yaml:"presetDir" json:"presetDir"`
}

// AnalysisConfig holds external post-processing tool settings
type AnalysisConfig struct {
	BaderCommand string `yaml:"baderCommand" json:"baderCommand"`
	// ChargemolCommand is tried as given; the conventional serial and
	// parallel executable names are fallbacks
	ChargemolCommand string `yaml:"chargemolCommand" json:"chargemolCommand"`
	// AtomicDensitiesDir is the chargemol reference-density directory
	AtomicDensitiesDir string `yaml:"atomicDensitiesDir" json:"atomicDensitiesDir"`
}

// WorkflowConfig holds workflow engine settings
type WorkflowConfig struct {
	// MaxDynamicJobs caps how many child jobs a single expansion may emit;
	// 0 means no cap
	MaxDynamicJobs int `yaml:"maxDynamicJobs" json:"maxDynamicJobs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig provides sensible defaults for a single-node setup
var DefaultConfig = Config{
	VASP: VASPConfig{
		Command: "vasp_std",
	},
	Paths: PathsConfig{
		ScratchRoot: ".",
		PresetDir:   "presets",
	},
	Analysis: AnalysisConfig{
		BaderCommand:     "bader",
		ChargemolCommand: "chargemol",
	},
	Workflow: WorkflowConfig{
		MaxDynamicJobs: 0,
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
}

// LoadConfig loads configuration from file and environment variables.
//  1. Path specified in VASPFLOW_CONFIG_PATH environment variable
//  2. ./vaspflow-config.yml
//  3. ./config/vaspflow-config.yml
//  4. $HOME/.vaspflow/vaspflow-config.yml
//
// Applies environment variable overrides for the VASP command, vdW data
// path, and logging. Validates the final configuration before returning.
// Returns (config, configPath, error) - configPath indicates source of
// configuration.
func LoadConfig() (*Config, string, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom behaves like LoadConfig but tries the explicit path
// first when one is given; a missing explicit file is an error rather
// than a silent fallback.
func LoadConfigFrom(explicit string) (*Config, string, error) {
	config := DefaultConfig

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, "", fmt.Errorf("config file %s is not accessible: %w", explicit, err)
		}
	}

	path, err := loadFromFile(&config, explicit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if val := os.Getenv("VASPFLOW_VASP_CMD"); val != "" {
		config.VASP.Command = val
	}
	if val := os.Getenv("VASPFLOW_VDW_KERNEL_DIR"); val != "" {
		config.VASP.VdwKernelDir = val
	}
	if val := os.Getenv("VASPFLOW_SCRATCH_ROOT"); val != "" {
		config.Paths.ScratchRoot = val
	}
	if val := os.Getenv("VASPFLOW_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("VASPFLOW_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

// loadFromFile loads configuration from the first available YAML file.
// Does not return an error if no file is found - defaults are used.
func loadFromFile(config *Config, explicit string) (string, error) {
	configPaths := []string{
		explicit,
		os.Getenv("VASPFLOW_CONFIG_PATH"),
		"./vaspflow-config.yml",
		"./config/vaspflow-config.yml",
		filepath.Join(os.Getenv("HOME"), ".vaspflow", "vaspflow-config.yml"),
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// Validate performs validation of the configuration. Paths that are set
// must exist; the vdW kernel directory is checked here, at build time,
// rather than when a calculator first asks for a vdW functional.
func (c *Config) Validate() error {
	if c.VASP.Command == "" {
		return fmt.Errorf("vasp.command must not be empty")
	}

	if c.VASP.VdwKernelDir != "" {
		if _, err := os.Stat(c.VASP.VdwKernelDir); err != nil {
			return fmt.Errorf("vasp.vdwKernelDir %q is not accessible: %w", c.VASP.VdwKernelDir, err)
		}
	}

	if c.Paths.ScratchRoot == "" {
		return fmt.Errorf("paths.scratchRoot must not be empty")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	switch c.Logging.Level {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR",
		"debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// HasVdwKernel reports whether the vdW reference data is configured.
func (c *Config) HasVdwKernel() bool {
	return c.VASP.VdwKernelDir != ""
}

// ScratchDir constructs the run directory path for a specific job.
func (c *Config) ScratchDir(jobID string) string {
	return filepath.Join(c.Paths.ScratchRoot, "run-"+jobID)
}
