package engine

import "atlasbridge-hq/atlasbridge/pkg/policy/document"

// PromptContext carries everything known about one inbound prompt.
type PromptContext struct {
	// PromptText is the raw text the tool presented.
	PromptText string

	// PromptType classifies the prompt.
	PromptType document.PromptType

	// Confidence is how sure the classifier is about PromptType.
	Confidence document.Confidence

	// ToolID identifies the originating tool, when known.
	ToolID string

	// RepoPath is the working repository path, when known.
	RepoPath string

	// SessionID groups prompts from one tool session.
	SessionID string

	// PromptID uniquely identifies this prompt within the session.
	PromptID string
}
