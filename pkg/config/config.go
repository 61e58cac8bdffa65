// Package config loads and validates the process-wide siteforge
// configuration. External API base URLs, directories, and tool paths all
// live here and are passed into the engine and clients at construction
// time; no component reads ambient global state.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root siteforge configuration.
type Config struct {
	// Hosting configures the git hosting API client.
	Hosting HostingConfig `yaml:"hosting"`

	// Orchestrator configures the orchestrator API client.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Paths configures the working directories.
	Paths PathsConfig `yaml:"paths"`

	// CMS configures the CMS management tooling invoked for database
	// provisioning and content import.
	CMS CMSConfig `yaml:"cms"`

	// App configures the orchestrator application registered per project.
	App AppConfig `yaml:"app"`

	// Store configures the SQLite state store.
	Store StoreConfig `yaml:"store"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing"`
}

// HostingConfig configures the git hosting API client.
type HostingConfig struct {
	// APIBase is the hosting API base URL.
	APIBase string `yaml:"api_base" validate:"required,url"`

	// WebhookURL is the push webhook target registered on each repo.
	WebhookURL string `yaml:"webhook_url" validate:"required,url"`
}

// OrchestratorConfig configures the orchestrator API client.
type OrchestratorConfig struct {
	// APIBase is the orchestrator API base URL.
	APIBase string `yaml:"api_base" validate:"required,url"`
}

// PathsConfig configures the working directories.
type PathsConfig struct {
	// Repos is the root directory for project working copies.
	Repos string `yaml:"repos" validate:"required"`

	// Templates is the directory holding the settings templates.
	Templates string `yaml:"templates" validate:"required"`

	// Settings is the output directory for rendered settings artifacts.
	Settings string `yaml:"settings" validate:"required"`
}

// CMSConfig configures the CMS management tooling.
type CMSConfig struct {
	// Python is the interpreter used for management commands.
	Python string `yaml:"python" validate:"required"`

	// ManageDir is the directory holding the CMS manage script.
	ManageDir string `yaml:"manage_dir" validate:"required"`

	// ReloadProgram and ReloadArgs form the web reload command.
	ReloadProgram string   `yaml:"reload_program" validate:"required"`
	ReloadArgs    []string `yaml:"reload_args"`
}

// AppConfig configures the per-project orchestrator application.
type AppConfig struct {
	// CPUs is the CPU share per instance.
	CPUs float64 `yaml:"cpus" validate:"gt=0"`

	// Mem is the memory allocation per instance in MiB.
	Mem float64 `yaml:"mem" validate:"gt=0"`

	// Instances is the number of instances to run.
	Instances int `yaml:"instances" validate:"gte=1"`

	// CmdFormat is the instance command, expanded with the project slug.
	CmdFormat string `yaml:"cmd_format" validate:"required"`
}

// StoreConfig configures the SQLite state store.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" validate:"required"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level.
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format" validate:"oneof=console json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	Enabled bool `yaml:"enabled"`

	// Listen is the metrics endpoint bind address.
	Listen string `yaml:"listen"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	Enabled bool `yaml:"enabled"`

	// Exporter specifies the trace exporter (stdout, none).
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=stdout none"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		App: AppConfig{
			CPUs:      0.1,
			Mem:       128,
			Instances: 1,
			CmdFormat: "pserve /etc/siteforge/settings/%s.ini",
		},
		CMS: CMSConfig{
			Python:        "python",
			ReloadProgram: "supervisorctl",
			ReloadArgs:    []string{"update"},
		},
		Store: StoreConfig{
			Path: "siteforge.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  ":9090",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Exporter: "none",
		},
	}
}

// Load reads, decodes, and validates the configuration file at path,
// applying defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
