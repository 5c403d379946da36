// AtlasBridge is a policy decision engine for AI-tool prompt mediation.
//
// It evaluates interactive prompts against an ordered rule policy, holds
// tool-approval webhook callers open until a human decides or a timeout
// fires, and records every decision in a hash-chained trace.
//
// Usage:
//
//	# Start the engine and HTTP API with default configuration
//	atlasbridge run
//
//	# Start with a custom configuration file
//	atlasbridge run --config /path/to/config.yaml
//
//	# Validate a policy document
//	atlasbridge policy validate --file policy.yaml
//
//	# Evaluate one prompt offline
//	atlasbridge policy test --file policy.yaml --text "Proceed? [Enter]" --prompt-type confirm_enter --confidence high
//
//	# Verify the decision trace hash chain
//	atlasbridge trace verify
//
//	# Show version information
//	atlasbridge version
package main

func main() {
	Execute()
}
