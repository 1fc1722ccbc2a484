package engine

import "fmt"

// ValidationError marks a request that is well-formed but violates a
// lifecycle rule. The server maps it to 422.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) error {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError marks an operation the actor is not entitled to.
// The server maps it to 403.
type PermissionError struct {
	Message string
}

func (e PermissionError) Error() string { return e.Message }

func permissionf(format string, args ...any) error {
	return PermissionError{Message: fmt.Sprintf(format, args...)}
}
