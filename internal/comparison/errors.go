package comparison

import "fmt"

// ComparisonError reports an invalid comparison configuration (bad threshold
// values, nothing configured) or an execution-time mismatch (wrong session
// count, wrong session id prefix, no matching sessions on either side).
type ComparisonError struct {
	message string
}

// NewComparisonError creates a new comparison error
func NewComparisonError(format string, args ...interface{}) *ComparisonError {
	return &ComparisonError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message
func (e *ComparisonError) Error() string {
	return e.message
}

// IsComparisonError checks if an error is a comparison error
func IsComparisonError(err error) bool {
	_, ok := err.(*ComparisonError)
	return ok
}
