package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults, then
// environment variable overrides (ATLASBRIDGE_SECTION_FIELD, which always
// win), then any caller-supplied overrides (command-line flags), and
// validates the result. Overrides run before validation so an invalid flag
// value fails here rather than at first use.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	for _, override := range overrides {
		override(&cfg)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies ATLASBRIDGE_SECTION_FIELD environment variables
// over the loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("ATLASBRIDGE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("ATLASBRIDGE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("ATLASBRIDGE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("ATLASBRIDGE_SERVER_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.RequestTimeout = d
		}
	}

	if val := os.Getenv("ATLASBRIDGE_POLICY_FILE_PATH"); val != "" {
		cfg.Policy.FilePath = val
	}
	if val := os.Getenv("ATLASBRIDGE_POLICY_PRESET_DIR"); val != "" {
		cfg.Policy.PresetDir = val
	}
	if val := os.Getenv("ATLASBRIDGE_POLICY_PRESET"); val != "" {
		cfg.Policy.Preset = val
	}
	if val := os.Getenv("ATLASBRIDGE_POLICY_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policy.Watch = b
		}
	}

	if val := os.Getenv("ATLASBRIDGE_TRACE_BACKEND"); val != "" {
		cfg.Trace.Backend = val
	}
	if val := os.Getenv("ATLASBRIDGE_TRACE_PATH"); val != "" {
		cfg.Trace.Path = val
	}
	if val := os.Getenv("ATLASBRIDGE_TRACE_MAX_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Trace.MaxBytes = n
		}
	}
	if val := os.Getenv("ATLASBRIDGE_TRACE_INTEGRITY_SCHEDULE"); val != "" {
		cfg.Trace.IntegritySchedule = val
	}

	if val := os.Getenv("ATLASBRIDGE_APPROVALS_BACKEND"); val != "" {
		cfg.Approvals.Backend = val
	}
	if val := os.Getenv("ATLASBRIDGE_APPROVALS_PATH"); val != "" {
		cfg.Approvals.Path = val
	}
	if val := os.Getenv("ATLASBRIDGE_APPROVALS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Approvals.Timeout = d
		}
	}
	if val := os.Getenv("ATLASBRIDGE_APPROVALS_PERMISSION_LIST_PATH"); val != "" {
		cfg.Approvals.PermissionListPath = val
	}

	if val := os.Getenv("ATLASBRIDGE_TELEMETRY_LOG_LEVEL"); val != "" {
		cfg.Telemetry.LogLevel = val
	}
	if val := os.Getenv("ATLASBRIDGE_TELEMETRY_LOG_FORMAT"); val != "" {
		cfg.Telemetry.LogFormat = val
	}
	if val := os.Getenv("ATLASBRIDGE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.MetricsEnabled = &b
		}
	}
}
