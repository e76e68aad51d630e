package config

import "fmt"

// ConfigError carries the source position of a lexing or parsing failure,
// grounded on original_source/include/ConfigError.hpp — the core treats
// configuration loading as an external collaborator, but still wants a
// precise line/column in the error it surfaces to the operator.
type ConfigError struct {
	Line    int
	Col     int
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message)
}

func errAt(tok Token, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Line: tok.Line, Col: tok.Col, Message: fmt.Sprintf(format, args...)}
}
