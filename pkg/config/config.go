package config

import "time"

// Config is the root configuration for the atlasbridge daemon.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Policy configures policy loading and hot reload.
	Policy PolicyConfig `yaml:"policy"`

	// Trace configures decision trace persistence.
	Trace TraceConfig `yaml:"trace"`

	// Approvals configures the approval correlator.
	Approvals ApprovalsConfig `yaml:"approvals"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// ListenAddress is the address the API listens on.
	// Default: ":8745"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It must
	// exceed the approval timeout or held webhook callers would be cut off
	// before a decision arrives.
	// Default: 150s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout bounds handler execution for non-held routes.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1 MiB
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// PolicyConfig contains policy source settings.
type PolicyConfig struct {
	// FilePath is the policy document to activate at startup. Optional
	// when Preset is set.
	FilePath string `yaml:"file_path"`

	// PresetDir is where named presets live.
	PresetDir string `yaml:"preset_dir"`

	// Preset names the preset to activate at startup instead of FilePath.
	Preset string `yaml:"preset"`

	// Watch reloads the policy when FilePath changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a file change triggers
	// a reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// TraceConfig contains decision trace persistence settings.
type TraceConfig struct {
	// Backend selects the storage backend: "jsonl", "sqlite", or "memory".
	// Default: "jsonl"
	Backend string `yaml:"backend"`

	// Path is the trace file (jsonl) or database (sqlite).
	// Default: "data/trace.jsonl"
	Path string `yaml:"path"`

	// MaxBytes rotates the jsonl file once it grows past this size.
	// Default: 10 MiB
	MaxBytes int64 `yaml:"max_bytes"`

	// MaxArchives is how many rotated jsonl files to keep.
	// Default: 3
	MaxArchives int `yaml:"max_archives"`

	// IntegritySchedule is a cron expression for scheduled verification.
	// Empty disables the scheduler.
	IntegritySchedule string `yaml:"integrity_schedule"`
}

// ApprovalsConfig contains approval correlator settings.
type ApprovalsConfig struct {
	// Backend selects the store: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the sqlite database location.
	// Default: "data/approvals.db"
	Path string `yaml:"path"`

	// Timeout is how long a request stays pending before it resolves to
	// denied.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// PermissionListPath persists always-allow rules. Empty disables the
	// permission list.
	PermissionListPath string `yaml:"permission_list_path"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	// LogLevel is one of debug, info, warn, error.
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// MetricsEnabled exposes /metrics.
	// Default: true
	MetricsEnabled *bool `yaml:"metrics_enabled"`
}

// MetricsOn reports whether metrics are enabled (default true).
func (t *TelemetryConfig) MetricsOn() bool {
	return t.MetricsEnabled == nil || *t.MetricsEnabled
}
