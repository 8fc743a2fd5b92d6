package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyNotFound is returned when a policy file does not exist.
	ErrPolicyNotFound = errors.New("policy file does not exist")
	// ErrSchemaValidation marks every malformed-document error.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrPathTraversal marks imports that resolve outside their root.
	ErrPathTraversal = errors.New("path traversal detected")
	// ErrEmptyTechnology is a configuration error: a check was requested
	// without naming its technology.
	ErrEmptyTechnology = errors.New("technology is not set")
	// ErrUnknownTechnology is returned for names outside Technologies().
	ErrUnknownTechnology = errors.New("unknown technology")
)

// SchemaError describes a policy document that does not match the schema.
// Path locates the offending node, e.g. "codescanning.conditions".
type SchemaError struct {
	Path string
	Key  string
	Msg  string
	Err  error
}

func (e *SchemaError) Error() string {
	value := e.Path
	if e.Key != "" {
		if value != "" {
			value += "."
		}
		value += e.Key
	}
	msg := fmt.Sprintf("Schema Validation Failed :: %s - %s", e.Msg, value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaValidation
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// PathTraversalError is returned when an import path escapes its root.
type PathTraversalError struct {
	Path string
	Root string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("Path Traversal Detected, halting import: %s is outside %s", e.Path, e.Root)
}

func (e *PathTraversalError) Is(target error) bool {
	return target == ErrPathTraversal
}
