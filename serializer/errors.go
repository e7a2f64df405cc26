package serializer

import (
	"fmt"
)

// NotFoundError is returned by BuildSingle when the record is absent.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing records.
var ErrNotFound = NotFoundError{}

// ConfigurationError reports a programmer error: an unregistered type, an
// invalid descriptor, a failing descriptor factory or a relationship cycle.
type ConfigurationError struct {
	Type   string
	Reason string
	Err    error
}

func (e ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Type != "" {
		msg += " for " + e.Type
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

func (e ConfigurationError) Is(target error) bool {
	_, ok := target.(ConfigurationError)
	if ok {
		return true
	}
	_, ok = target.(*ConfigurationError)
	return ok
}

var ErrConfiguration = ConfigurationError{}

// ResolutionError is a relationship that could not be resolved and was
// left out of the document instead of failing the whole call.
type ResolutionError struct {
	Type         string
	ID           string
	Relationship string
	Err          error
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s[%s].%s: %v", e.Type, e.ID, e.Relationship, e.Err)
}

func (e ResolutionError) Unwrap() error {
	return e.Err
}
