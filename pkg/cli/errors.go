package cli

import "fmt"

// ConfigError reports an invalid or unloadable configuration. Section names
// the configuration section at fault (server, trace, approvals, policy,
// telemetry); it is empty when the file as a whole could not be loaded.
type ConfigError struct {
	Section string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s section: %s", e.Section, e.Message)
}

// CommandError wraps a failure from a subcommand so the root command reports
// which command failed.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("atlasbridge %s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(section, message string) *ConfigError {
	return &ConfigError{
		Section: section,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}
