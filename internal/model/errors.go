package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure classes. Callers match them
// with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSchema        = errors.New("schema violation")
)

// ConfigError reports an invalid pipeline option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// SchemaError reports an input row that does not satisfy the panel schema.
// Row is 1-based in input order; 0 means the whole input (e.g. a missing column).
type SchemaError struct {
	Row    int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("schema: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schema: row %d: %s: %s", e.Row, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }
