package config

import "time"

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8745"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 150 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}

	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = 100 * time.Millisecond
	}

	if cfg.Trace.Backend == "" {
		cfg.Trace.Backend = "jsonl"
	}
	if cfg.Trace.Path == "" {
		cfg.Trace.Path = "data/trace.jsonl"
	}
	if cfg.Trace.MaxBytes == 0 {
		cfg.Trace.MaxBytes = 10 * 1024 * 1024
	}
	if cfg.Trace.MaxArchives == 0 {
		cfg.Trace.MaxArchives = 3
	}

	if cfg.Approvals.Backend == "" {
		cfg.Approvals.Backend = "memory"
	}
	if cfg.Approvals.Path == "" {
		cfg.Approvals.Path = "data/approvals.db"
	}
	if cfg.Approvals.Timeout == 0 {
		cfg.Approvals.Timeout = 120 * time.Second
	}

	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = "info"
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = "text"
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
