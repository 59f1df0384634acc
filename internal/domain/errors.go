package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API clients alongside the status code.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeSeatConflict = "seat_conflict"
	CodeUnavailable  = "service_unavailable"
	CodeInternal     = "internal_error"
)

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	switch {
	case e.Msg != "" && e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

func (e ValidationError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError reports a state clash the client can resolve by retrying
// with different input. Seats lists the seat numbers involved, if any.
type ConflictError struct {
	Resource string
	Msg      string
	Seats    []int
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// Code distinguishes seat collisions from other conflicts.
func (e ConflictError) Code() string {
	if e.Resource == "seat" {
		return CodeSeatConflict
	}
	return CodeConflict
}

// UnavailableError wraps a transient infrastructure failure (database,
// cache, payment gateway). Its text is never sent to clients.
type UnavailableError struct {
	Service string
	Err     error
}

func (e UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Service)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsUnavailable(err error) bool {
	var target UnavailableError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// AsConflict returns the ConflictError in err's chain, if any.
func AsConflict(err error) (ConflictError, bool) {
	var target ConflictError
	ok := errors.As(err, &target)
	return target, ok
}

func Validation(field, msg string) error {
	return ValidationError{Field: field, Msg: msg}
}

func NotFound(resource string, err error) error {
	return NotFoundError{Resource: resource, Err: err}
}

func SeatConflict(seats []int) error {
	return ConflictError{
		Resource: "seat",
		Msg:      fmt.Sprintf("seats already booked: %v", seats),
		Seats:    seats,
	}
}

func Unavailable(service string, err error) error {
	return UnavailableError{Service: service, Err: err}
}

func Internal(msg string, err error) error {
	return InternalError{Msg: msg, Err: err}
}
