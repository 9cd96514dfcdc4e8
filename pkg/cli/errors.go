package cli

import (
	"context"
	"errors"
	"fmt"

	"dfas-hq/dfas/pkg/config"
	"dfas-hq/dfas/pkg/evidence"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitCaseSealed  = 3
	ExitIncomplete  = 4
	ExitInterrupted = 130
)

// ConfigError represents an error in configuration or command-line input.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrIncomplete marks a command that ran to completion but found problems,
// such as files that could not be collected or a failed verification.
var ErrIncomplete = errors.New("completed with problems")

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
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

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	var valErr config.ValidationError

	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return ExitConfig
	case errors.Is(err, evidence.ErrCaseSealed):
		return ExitCaseSealed
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, ErrIncomplete):
		return ExitIncomplete
	default:
		return ExitFailure
	}
}
