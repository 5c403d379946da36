package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"atlasbridge-hq/atlasbridge/pkg/approval"
	approvalstore "atlasbridge-hq/atlasbridge/pkg/approval/store"
	"atlasbridge-hq/atlasbridge/pkg/cli"
	"atlasbridge-hq/atlasbridge/pkg/config"
	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/engine"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
	"atlasbridge-hq/atlasbridge/pkg/server"
	"atlasbridge-hq/atlasbridge/pkg/server/handlers"
	"atlasbridge-hq/atlasbridge/pkg/telemetry/logging"
	"atlasbridge-hq/atlasbridge/pkg/telemetry/metrics"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/integrity"
	tracestorage "atlasbridge-hq/atlasbridge/pkg/trace/storage"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the AtlasBridge engine and HTTP API",
	Long: `Start the policy decision engine with the specified configuration.

The server evaluates prompts against the active policy, holds approval
webhook callers until a decision arrives, and appends every decision to
the hash-chained trace.

Examples:
  # Start with default config
  atlasbridge run

  # Start with custom config
  atlasbridge run --config /etc/atlasbridge/config.yaml

  # Override listen address
  atlasbridge run --listen 0.0.0.0:8745

  # Validate config without starting the server
  atlasbridge run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, func(cfg *config.Config) {
		if runFlags.listenAddress != "" {
			cfg.Server.ListenAddress = runFlags.listenAddress
		}
		if runFlags.logLevel != "" {
			cfg.Telemetry.LogLevel = runFlags.logLevel
		}
	})
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := logging.Setup(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat, os.Stdout)
	if err != nil {
		return cli.NewConfigError("telemetry", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx := cli.SetupSignalHandler()

	var m *metrics.Metrics
	if cfg.Telemetry.MetricsOn() {
		m = metrics.New()
	}

	traceStorage, err := newTraceStorage(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	traceLog, err := trace.NewLog(ctx, traceStorage)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open decision trace: %w", err))
	}
	defer traceLog.Close()
	fmt.Printf("✓ Decision trace ready (%s backend)\n", cfg.Trace.Backend)

	policies := store.NewStore(cfg.Policy.PresetDir)
	if err := activateStartupPolicy(cfg, policies); err != nil {
		return cli.NewCommandError("run", err)
	}
	if active := policies.Active(); active != nil {
		fmt.Printf("✓ Policy active: %s (%d rules)\n", active.Document.Name, len(active.Document.Rules))
	} else {
		logger.Warn("no startup policy configured, activate one via the API")
	}

	eng := engine.New(policies, traceLog, m)

	approvalStore, err := newApprovalStore(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer approvalStore.Close()

	opts := []approval.Option{
		approval.WithTimeout(cfg.Approvals.Timeout),
		approval.WithMetrics(m),
	}
	var permissions handlers.PermissionChecker
	if cfg.Approvals.PermissionListPath != "" {
		list, err := approval.NewFilePermissionList(cfg.Approvals.PermissionListPath)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		opts = append(opts, approval.WithPermissionSink(list))
		permissions = list
	}
	correlator := approval.NewCorrelator(approvalStore, opts...)
	defer correlator.Close()
	fmt.Printf("✓ Approval correlator ready (timeout %s)\n", cfg.Approvals.Timeout)

	if cfg.Policy.Watch && cfg.Policy.FilePath != "" {
		watcher, err := store.NewWatcher(cfg.Policy.FilePath, cfg.Policy.DebounceInterval)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to watch policy file: %w", err))
		}
		defer watcher.Stop()
		go func() {
			err := watcher.Watch(ctx, func() error {
				return activateFile(policies, cfg.Policy.FilePath)
			})
			if err != nil {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
		fmt.Printf("✓ Watching %s for policy changes\n", cfg.Policy.FilePath)
	}

	if cfg.Trace.IntegritySchedule != "" {
		reporter := integrity.NewReporter(traceLog, m)
		scheduler := integrity.NewScheduler(reporter, cfg.Trace.IntegritySchedule)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to start integrity scheduler: %w", err))
		}
		defer scheduler.Stop()
		fmt.Printf("✓ Integrity verification scheduled (%s)\n", cfg.Trace.IntegritySchedule)
	}

	srv := server.NewServer(&cfg.Server, eng, policies, correlator, permissions, traceLog, m)

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if m != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

func newTraceStorage(cfg *config.Config) (trace.Storage, error) {
	switch cfg.Trace.Backend {
	case "jsonl":
		return tracestorage.NewJSONLStorage(&tracestorage.JSONLConfig{
			Path:        cfg.Trace.Path,
			MaxBytes:    cfg.Trace.MaxBytes,
			MaxArchives: cfg.Trace.MaxArchives,
		})
	case "sqlite":
		return tracestorage.NewSQLiteStorage(tracestorage.DefaultSQLiteConfig(cfg.Trace.Path))
	case "memory":
		return tracestorage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported trace backend: %s", cfg.Trace.Backend)
	}
}

func newApprovalStore(cfg *config.Config) (approval.Store, error) {
	switch cfg.Approvals.Backend {
	case "sqlite":
		return approvalstore.NewSQLiteStore(cfg.Approvals.Path, 5*time.Second)
	case "memory":
		return approvalstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported approvals backend: %s", cfg.Approvals.Backend)
	}
}

func activateStartupPolicy(cfg *config.Config, policies *store.Store) error {
	switch {
	case cfg.Policy.Preset != "":
		_, err := policies.ActivatePreset(cfg.Policy.Preset)
		return err
	case cfg.Policy.FilePath != "":
		return activateFile(policies, cfg.Policy.FilePath)
	default:
		return nil
	}
}

func activateFile(policies *store.Store, path string) error {
	doc, err := document.ParseFile(path)
	if err != nil {
		return err
	}
	_, err = policies.ActivateDocument(doc)
	return err
}
