package fhir

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when an operation requires a resolved
// session and none is present on the request context.
var ErrUnauthenticated = errors.New("authentication required")

// NotFoundError reports that a resource (or an explicit version of it) does
// not exist in the current session.
type NotFoundError struct {
	ResourceType string
	ID           string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s not found", e.ResourceType, e.ID)
}

// GoneError reports that a resource id has been deleted. Distinct from
// NotFoundError: the id existed and carries a tombstone.
type GoneError struct {
	ResourceType string
	ID           string
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("%s/%s has been deleted", e.ResourceType, e.ID)
}

// BadRequestError reports a malformed request body or path.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsGone reports whether err is a GoneError.
func IsGone(err error) bool {
	var g *GoneError
	return errors.As(err, &g)
}
