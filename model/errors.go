package model

import "strings"

// MultiError collects the semantic errors accumulated while compiling one
// model file, mirroring schema.MultiError.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	parts := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}
