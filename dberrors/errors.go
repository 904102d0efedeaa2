// Package dberrors defines the error taxonomy shared by the command,
// transaction and executor packages.
//
// Four kinds of failure are surfaced to callers:
//
//   - ConfigError: misuse of the API. Never retried.
//   - ExecutionError: a database failure (or exhausted deadlock retries)
//     wrapped together with a diagnostic snapshot of the command.
//   - ConversionError: a scalar or field value that cannot become the
//     requested Go type.
//   - ErrNoTransaction: Commit on a scope with no open frame.
//
// Transient lock failures are not a separate type; they are classified by
// the connection provider and, once retries run out, reported as an
// ExecutionError with Transient set.
package dberrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTransaction is returned when committing a scope whose frame stack is empty.
var ErrNoTransaction = errors.New("dbcommand: no open transaction to commit")

// ConfigError reports an invalid configuration or a misuse of the API.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// NewConfigError is a small convenience used across packages.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Parameter describes one bound parameter in a Snapshot.
type Parameter struct {
	Name      string
	Direction string
	Value     any
}

// Snapshot is the diagnostic view of a command at the time it failed.
type Snapshot struct {
	Text       string
	Kind       string
	Parameters []Parameter
}

// String renders the snapshot in the multi-line layout used by ExecutionError.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command (%s): %s", s.Kind, s.Text)
	if len(s.Parameters) == 0 {
		return b.String()
	}
	b.WriteString("\nParameters:")
	for _, p := range s.Parameters {
		fmt.Fprintf(&b, "\n  %s [%s] = %s", p.Name, p.Direction, formatValue(p.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// ExecutionError wraps a database failure with the command that produced it.
type ExecutionError struct {
	// ConnectionString has its password masked.
	ConnectionString string
	Command          Snapshot
	Attempts         int
	Transient        bool
	Err              error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString("dbcommand: execution failed")
	if e.Transient {
		fmt.Fprintf(&b, " after %d attempt(s) on transient errors", e.Attempts)
	}
	if e.ConnectionString != "" {
		b.WriteString("\nConnection: ")
		b.WriteString(e.ConnectionString)
	}
	b.WriteString("\n")
	b.WriteString(e.Command.String())
	if e.Err != nil {
		b.WriteString("\nMessage: ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying database error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// ConversionError reports a value that cannot be converted to Target.
type ConversionError struct {
	Target string
	Value  any
	Err    error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %T(%v) to %s", e.Value, e.Value, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the conversion failure reported by the converter, if any.
func (e *ConversionError) Unwrap() error { return e.Err }

// IsConfig reports whether err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsExecution reports whether err is, or wraps, an ExecutionError.
func IsExecution(err error) bool {
	var target *ExecutionError
	return errors.As(err, &target)
}

// IsConversion reports whether err is, or wraps, a ConversionError.
func IsConversion(err error) bool {
	var target *ConversionError
	return errors.As(err, &target)
}
