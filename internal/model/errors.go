package model

import "fmt"

// ConfigError is a fatal startup problem: malformed rules or criteria, or a missing credential.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error in %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps a formatted message as a ConfigError for source.
func NewConfigError(source, format string, args ...any) *ConfigError {
	return &ConfigError{Source: source, Err: fmt.Errorf(format, args...)}
}

// AgentError means the external agent call failed; it aborts the current run only.
type AgentError struct {
	RunID uint64
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error (run %d): %v", e.RunID, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// EvaluationError means judging a single criterion could not complete.
type EvaluationError struct {
	CriterionID string
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("criterion %s unresolved: %v", e.CriterionID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
