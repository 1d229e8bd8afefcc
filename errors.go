package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Tagged error kinds. Everything that crosses the HTTP boundary is either
// one of these or an internal 500.
type errKind int

const (
	errValidation errKind = iota + 1
	errAuth
	errForbidden
	errNotFound
	errConflict
	errTooLarge
	errIntegrity
	errInternal
)

type apiError struct {
	kind errKind
	msg  string
	err  error
}

func (e *apiError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *apiError) Unwrap() error { return e.err }

func errValidationf(format string, args ...any) error {
	return &apiError{kind: errValidation, msg: fmt.Sprintf(format, args...)}
}

func errAuthf(format string, args ...any) error {
	return &apiError{kind: errAuth, msg: fmt.Sprintf(format, args...)}
}

func errForbiddenf(format string, args ...any) error {
	return &apiError{kind: errForbidden, msg: fmt.Sprintf(format, args...)}
}

func errNotFoundf(format string, args ...any) error {
	return &apiError{kind: errNotFound, msg: fmt.Sprintf(format, args...)}
}

func errConflictf(format string, args ...any) error {
	return &apiError{kind: errConflict, msg: fmt.Sprintf(format, args...)}
}

func errTooLargef(format string, args ...any) error {
	return &apiError{kind: errTooLarge, msg: fmt.Sprintf(format, args...)}
}

func errIntegrityf(format string, args ...any) error {
	return &apiError{kind: errIntegrity, msg: fmt.Sprintf(format, args...)}
}

func errInternalf(format string, args ...any) error {
	return &apiError{kind: errInternal, msg: fmt.Sprintf(format, args...)}
}

// wrapInternal tags an arbitrary error as internal, keeping the chain.
func wrapInternal(msg string, err error) error {
	return &apiError{kind: errInternal, msg: msg, err: err}
}

// httpStatus maps an error to the status code the boundary returns.
// Untagged errors are treated as internal.
func httpStatus(err error) int {
	var ae *apiError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.kind {
	case errValidation:
		return http.StatusBadRequest
	case errAuth:
		return http.StatusUnauthorized
	case errForbidden:
		return http.StatusForbidden
	case errNotFound:
		return http.StatusNotFound
	case errConflict:
		return http.StatusConflict
	case errTooLarge:
		return http.StatusRequestEntityTooLarge
	case errIntegrity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorKindIs reports whether err carries the given tag.
func errorKindIs(err error, kind errKind) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.kind == kind
}
