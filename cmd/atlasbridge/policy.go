package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"atlasbridge-hq/atlasbridge/pkg/cli"
	"atlasbridge-hq/atlasbridge/pkg/policy/document"
	"atlasbridge-hq/atlasbridge/pkg/policy/engine"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
	"atlasbridge-hq/atlasbridge/pkg/trace"
	tracestorage "atlasbridge-hq/atlasbridge/pkg/trace/storage"
)

var policyFlags struct {
	file       string
	text       string
	promptType string
	confidence string
	toolID     string
	repoPath   string
	format     string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and test policy documents",
	Long: `Validate and test policy documents without a running server.

Subcommands:
  validate - Parse and validate a policy document
  test     - Evaluate one prompt against a policy document offline

Examples:
  # Validate a policy file
  atlasbridge policy validate --file policy.yaml

  # See which rule a prompt would hit
  atlasbridge policy test --file policy.yaml --text "Proceed? [Enter]" \
    --prompt-type confirm_enter --confidence high`,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a policy document",
	Long: `Parse and validate a policy document.

Validation checks YAML structure, rule ids, enum values, regex patterns,
and defaults. A valid document prints its name, rule count, and hash.`,
	RunE: validatePolicy,
}

var policyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Evaluate one prompt offline",
	Long: `Evaluate a single prompt against a policy document.

The evaluation runs the same matcher and dispatcher as the server but
records the decision in an in-memory trace, so nothing is persisted.

Examples:
  # Which rule matches a credential prompt?
  atlasbridge policy test --file policy.yaml --text "Enter password:" \
    --prompt-type free_text --confidence high

  # JSON output for scripting
  atlasbridge policy test --file policy.yaml --text "Proceed?" \
    --prompt-type yes_no --confidence low --format json`,
	RunE: testPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyTestCmd)

	policyValidateCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policy document path (required)")
	policyValidateCmd.MarkFlagRequired("file")

	policyTestCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policy document path (required)")
	policyTestCmd.Flags().StringVar(&policyFlags.text, "text", "", "prompt text (required)")
	policyTestCmd.Flags().StringVar(&policyFlags.promptType, "prompt-type", "free_text", "prompt type (yes_no, confirm_enter, multiple_choice, free_text, tool_use)")
	policyTestCmd.Flags().StringVar(&policyFlags.confidence, "confidence", "high", "detection confidence (low, medium, high)")
	policyTestCmd.Flags().StringVar(&policyFlags.toolID, "tool-id", "", "tool identifier")
	policyTestCmd.Flags().StringVar(&policyFlags.repoPath, "repo-path", "", "repository path")
	policyTestCmd.Flags().StringVar(&policyFlags.format, "format", "text", "output format (text, json)")
	policyTestCmd.MarkFlagRequired("file")
	policyTestCmd.MarkFlagRequired("text")
}

func validatePolicy(cmd *cobra.Command, args []string) error {
	doc, err := document.ParseFile(policyFlags.file)
	if err != nil {
		return cli.NewCommandError("policy validate", err)
	}

	policies := store.NewStore("")
	active, err := policies.ActivateDocument(doc)
	if err != nil {
		return cli.NewCommandError("policy validate", err)
	}

	fmt.Printf("✓ %s is valid\n", policyFlags.file)
	fmt.Printf("  Name:          %s\n", active.Document.Name)
	fmt.Printf("  Version:       %s\n", active.Document.PolicyVersion)
	fmt.Printf("  Autonomy mode: %s\n", active.Document.AutonomyMode)
	fmt.Printf("  Rules:         %d\n", len(active.Document.Rules))
	fmt.Printf("  Hash:          %s\n", active.Hash)
	return nil
}

func testPolicy(cmd *cobra.Command, args []string) error {
	promptType := document.PromptType(policyFlags.promptType)
	if !promptType.Valid() {
		return cli.NewCommandError("policy test", fmt.Errorf("unknown prompt type: %s", policyFlags.promptType))
	}
	confidence := document.Confidence(policyFlags.confidence)
	if !confidence.Valid() {
		return cli.NewCommandError("policy test", fmt.Errorf("unknown confidence: %s", policyFlags.confidence))
	}

	doc, err := document.ParseFile(policyFlags.file)
	if err != nil {
		return cli.NewCommandError("policy test", err)
	}

	ctx := context.Background()
	traceLog, err := trace.NewLog(ctx, tracestorage.NewMemoryStorage())
	if err != nil {
		return cli.NewCommandError("policy test", err)
	}
	defer traceLog.Close()

	policies := store.NewStore("")
	if _, err := policies.ActivateDocument(doc); err != nil {
		return cli.NewCommandError("policy test", err)
	}

	eng := engine.New(policies, traceLog, nil)
	decision, err := eng.Evaluate(ctx, &engine.PromptContext{
		PromptText: policyFlags.text,
		PromptType: promptType,
		Confidence: confidence,
		ToolID:     policyFlags.toolID,
		RepoPath:   policyFlags.repoPath,
	})
	if err != nil {
		return cli.NewCommandError("policy test", err)
	}

	if policyFlags.format == "json" {
		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return cli.NewCommandError("policy test", err)
		}
		fmt.Println(string(out))
		return nil
	}

	matched := "(none)"
	if decision.MatchedRuleID != nil {
		matched = *decision.MatchedRuleID
	}
	fmt.Printf("Matched rule: %s\n", matched)
	fmt.Printf("Action:       %s\n", decision.ActionType)
	if decision.ActionValue != "" {
		fmt.Printf("Value:        %q\n", decision.ActionValue)
	}
	fmt.Printf("Explanation:  %s\n", decision.Explanation)
	return nil
}
