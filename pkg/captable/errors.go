package captable

import (
	"errors"
	"fmt"
)

// ValidationError reports cap table data that breaks an invariant. It is
// fatal: callers must surface it rather than patch the input.
type ValidationError struct {
	CompanyID string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.CompanyID != "" {
		return fmt.Sprintf("invalid cap table %s: %s: %s", e.CompanyID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError for input that is not tied to a company.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
