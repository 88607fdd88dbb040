package stratify

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched with errors.Is by every *ConfigurationError
var ErrConfiguration = errors.New("invalid configuration")

/*
ConfigurationError is returned by New when the configuration of a Splitter
is not valid for the given dataset. Field names the offending Config field.
*/
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (ce *ConfigurationError) Error() string {
	if ce.Err != nil {
		return fmt.Sprintf("%v: %s: %s: %v", ErrConfiguration, ce.Field, ce.Reason, ce.Err)
	}
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, ce.Field, ce.Reason)
}

// Is reports whether target is ErrConfiguration
func (ce *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}

func configurationError(field string, err error, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}
