package query

import "fmt"

// InvalidFilterKindError reports a filter constructed with an unsupported
// match type, an unknown field name, or an unparsable pattern. It is always
// detected at filter-construction time, never at execution time, so
// malformed pipelines fail fast before touching data.
type InvalidFilterKindError struct {
	message string
}

// NewInvalidFilterKindError creates a new invalid filter kind error
func NewInvalidFilterKindError(format string, args ...interface{}) *InvalidFilterKindError {
	return &InvalidFilterKindError{
		message: fmt.Sprintf(format, args...),
	}
}

// Error returns the error message
func (e *InvalidFilterKindError) Error() string {
	return e.message
}

// IsInvalidFilterKindError checks if an error is an invalid filter kind error
func IsInvalidFilterKindError(err error) bool {
	_, ok := err.(*InvalidFilterKindError)
	return ok
}

// UnknownFilterTypeError reports a serialized filter spec whose type tag has
// no registered filter kind.
type UnknownFilterTypeError struct {
	TypeTag string
}

// NewUnknownFilterTypeError creates a new unknown filter type error
func NewUnknownFilterTypeError(typeTag string) *UnknownFilterTypeError {
	return &UnknownFilterTypeError{TypeTag: typeTag}
}

// Error returns the error message
func (e *UnknownFilterTypeError) Error() string {
	return fmt.Sprintf("unknown filter type: %q", e.TypeTag)
}

// IsUnknownFilterTypeError checks if an error is an unknown filter type error
func IsUnknownFilterTypeError(err error) bool {
	_, ok := err.(*UnknownFilterTypeError)
	return ok
}
