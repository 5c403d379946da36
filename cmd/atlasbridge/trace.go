package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"atlasbridge-hq/atlasbridge/pkg/cli"
	"atlasbridge-hq/atlasbridge/pkg/config"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	"atlasbridge-hq/atlasbridge/pkg/trace/export"
)

var traceFlags struct {
	sessionID string
	format    string
	output    string
	limit     int
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect the decision trace",
	Long: `Inspect the hash-chained decision trace.

Subcommands read the trace backend named in the config file, so they work
against the same data as a running server.

Subcommands:
  list   - Print recorded decisions
  verify - Recompute and verify the hash chain
  export - Write the trace as JSON or CSV

Examples:
  # List decisions for one session
  atlasbridge trace list --session-id s-42

  # Verify chain integrity
  atlasbridge trace verify

  # Export everything as CSV
  atlasbridge trace export --format csv --output trace.csv`,
}

var traceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print recorded decisions",
	RunE:  listTrace,
}

var traceVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain",
	Long: `Recompute the hash chain from the genesis entry and report the first
divergence, if any. Exits non-zero when the chain does not verify.`,
	RunE: verifyTrace,
}

var traceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the trace as JSON or CSV",
	RunE:  exportTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceVerifyCmd)
	traceCmd.AddCommand(traceExportCmd)

	traceListCmd.Flags().StringVar(&traceFlags.sessionID, "session-id", "", "filter by session")
	traceListCmd.Flags().IntVar(&traceFlags.limit, "limit", 0, "print at most N newest entries (0 = all)")

	traceExportCmd.Flags().StringVar(&traceFlags.sessionID, "session-id", "", "filter by session")
	traceExportCmd.Flags().StringVar(&traceFlags.format, "format", "json", "output format (json, csv)")
	traceExportCmd.Flags().StringVarP(&traceFlags.output, "output", "o", "", "output file (default stdout)")
}

// openTraceLog opens the configured trace backend read-only enough for CLI
// use: the Log constructor only reads the chain tail.
func openTraceLog(ctx context.Context) (*trace.Log, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	storage, err := newTraceStorage(cfg)
	if err != nil {
		return nil, err
	}
	return trace.NewLog(ctx, storage)
}

func listTrace(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	traceLog, err := openTraceLog(ctx)
	if err != nil {
		return cli.NewCommandError("trace list", err)
	}
	defer traceLog.Close()

	entries, err := traceLog.List(ctx, traceFlags.sessionID)
	if err != nil {
		return cli.NewCommandError("trace list", err)
	}
	if traceFlags.limit > 0 && len(entries) > traceFlags.limit {
		entries = entries[len(entries)-traceFlags.limit:]
	}

	if len(entries) == 0 {
		fmt.Println("No decisions recorded.")
		return nil
	}
	for _, d := range entries {
		matched := "-"
		if d.MatchedRuleID != nil {
			matched = *d.MatchedRuleID
		}
		fmt.Printf("%s  %-22s  %-13s  session=%s  %s\n",
			d.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			matched,
			d.ActionType,
			d.SessionID,
			d.Explanation,
		)
	}
	fmt.Printf("\n%d decisions\n", len(entries))
	return nil
}

func verifyTrace(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	traceLog, err := openTraceLog(ctx)
	if err != nil {
		return cli.NewCommandError("trace verify", err)
	}
	defer traceLog.Close()

	report, err := traceLog.Verify(ctx)
	if err != nil {
		return cli.NewCommandError("trace verify", err)
	}

	fmt.Printf("Entries:  %d\n", report.TotalTraceEntries)
	fmt.Printf("Status:   %s\n", report.OverallStatus)
	for _, component := range report.Components {
		fmt.Printf("  %-16s %s\n", component.Component, component.Status)
	}

	if !report.HashChainValid {
		return cli.NewCommandError("trace verify", fmt.Errorf("hash chain verification failed"))
	}
	fmt.Println("✓ Hash chain verified")
	return nil
}

func exportTrace(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	traceLog, err := openTraceLog(ctx)
	if err != nil {
		return cli.NewCommandError("trace export", err)
	}
	defer traceLog.Close()

	entries, err := traceLog.List(ctx, traceFlags.sessionID)
	if err != nil {
		return cli.NewCommandError("trace export", err)
	}

	out := os.Stdout
	if traceFlags.output != "" {
		f, err := os.Create(traceFlags.output)
		if err != nil {
			return cli.NewCommandError("trace export", err)
		}
		defer f.Close()
		out = f
	}

	switch traceFlags.format {
	case "json":
		err = export.NewJSONExporter(true).Export(ctx, entries, out)
	case "csv":
		err = export.NewCSVExporter(true).Export(ctx, entries, out)
	default:
		err = fmt.Errorf("unsupported format: %s", traceFlags.format)
	}
	if err != nil {
		return cli.NewCommandError("trace export", err)
	}

	if traceFlags.output != "" {
		fmt.Printf("✓ Exported %d decisions to %s\n", len(entries), traceFlags.output)
	}
	return nil
}
