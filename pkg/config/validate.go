package config

import "fmt"

// Validate checks the configuration for inconsistencies.
func Validate(cfg *Config) error {
	switch cfg.Trace.Backend {
	case "jsonl", "sqlite", "memory":
	default:
		return fmt.Errorf("trace.backend must be jsonl, sqlite, or memory, got %q", cfg.Trace.Backend)
	}

	switch cfg.Approvals.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("approvals.backend must be memory or sqlite, got %q", cfg.Approvals.Backend)
	}

	if cfg.Approvals.Timeout <= 0 {
		return fmt.Errorf("approvals.timeout must be positive")
	}
	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout <= cfg.Approvals.Timeout {
		return fmt.Errorf("server.write_timeout (%s) must exceed approvals.timeout (%s) or held callers are cut off",
			cfg.Server.WriteTimeout, cfg.Approvals.Timeout)
	}

	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.log_level must be debug, info, warn, or error, got %q", cfg.Telemetry.LogLevel)
	}

	switch cfg.Telemetry.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("telemetry.log_format must be text or json, got %q", cfg.Telemetry.LogFormat)
	}

	if cfg.Policy.Preset != "" && cfg.Policy.PresetDir == "" {
		return fmt.Errorf("policy.preset requires policy.preset_dir")
	}
	if cfg.Policy.Watch && cfg.Policy.FilePath == "" {
		return fmt.Errorf("policy.watch requires policy.file_path")
	}

	return nil
}
