package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCellDisabled   = errors.New("cell is disabled")
	ErrCellOutOfRange = errors.New("cell is outside the visible range")
)

// ConfigurationError reports an option value the engine refuses to work with.
// Values are never clamped; the configuration that produced it is rejected.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("calendar: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func configErr(field string, value any, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// SelectionError reports a selection that was refused. Err is ErrCellDisabled
// or ErrCellOutOfRange.
type SelectionError struct {
	Time time.Time
	Err  error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("calendar: cannot select %s: %v", e.Time.Format(time.RFC3339), e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// ValidationError marks a single malformed event. The event is left out of the
// layout; the rest of the source still renders.
type ValidationError struct {
	Identifier string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("calendar: event %q rejected: %s", e.Identifier, e.Reason)
}
