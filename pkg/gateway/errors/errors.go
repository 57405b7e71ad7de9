// Package errors provides the error kinds surfaced by the gateway core.
// It is a leaf package imported by the path resolver, the filesystem facade,
// the WebDAV handler, and the HTTP surface without causing circular imports.
//
// Import graph: errors <- vpath <- fs <- webdav/api
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents the kind of gateway error that occurred.
type ErrorCode int

const (
	// ErrInvalidPath indicates a non-canonical or otherwise rejected virtual path.
	ErrInvalidPath ErrorCode = iota + 1

	// ErrNotFound indicates the requested object or directory does not exist.
	ErrNotFound

	// ErrConflict indicates an overwrite without permission: MKCOL over an
	// existing collection, rename to an existing target.
	ErrConflict

	// ErrPathForbidden indicates the principal's allowed prefix does not
	// cover the requested path.
	ErrPathForbidden

	// ErrPermissionDenied indicates a missing capability flag.
	ErrPermissionDenied

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized

	// ErrUnsupported indicates an unsupported request shape, e.g. MKCOL with
	// a body, or an operation the storage driver lacks the capability for.
	ErrUnsupported

	// ErrLocked indicates a WebDAV lock conflict.
	ErrLocked

	// ErrCapacityExhausted indicates the storage config's capacity cap would
	// be exceeded.
	ErrCapacityExhausted

	// ErrUpstreamUnavailable indicates the object store kept failing after
	// the retry budget was spent.
	ErrUpstreamUnavailable

	// ErrSizeMismatch indicates declared and actual body sizes differ.
	ErrSizeMismatch

	// ErrPayloadTooLarge indicates the body exceeds a configured limit.
	ErrPayloadTooLarge

	// ErrMountNotFound indicates no mount is a prefix of the virtual path.
	ErrMountNotFound

	// ErrCrossMountRename indicates a rename whose source and target resolve
	// to different mounts.
	ErrCrossMountRename
)

// String returns the wire-level name of the error code, as used in the JSON
// error envelope.
func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidPath:
		return "invalidPath"
	case ErrNotFound:
		return "notFound"
	case ErrConflict:
		return "conflict"
	case ErrPathForbidden:
		return "pathForbidden"
	case ErrPermissionDenied:
		return "permissionDenied"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrUnsupported:
		return "unsupported"
	case ErrLocked:
		return "locked"
	case ErrCapacityExhausted:
		return "capacityExhausted"
	case ErrUpstreamUnavailable:
		return "upstreamUnavailable"
	case ErrSizeMismatch:
		return "sizeMismatch"
	case ErrPayloadTooLarge:
		return "payloadTooLarge"
	case ErrMountNotFound:
		return "mountNotFound"
	case ErrCrossMountRename:
		return "crossMountRename"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// HTTPStatus maps the error code to its HTTP status.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrInvalidPath:
		return http.StatusBadRequest
	case ErrNotFound, ErrMountNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrCrossMountRename:
		return http.StatusConflict
	case ErrPathForbidden, ErrPermissionDenied:
		return http.StatusForbidden
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrUnsupported:
		return http.StatusUnsupportedMediaType
	case ErrLocked:
		return http.StatusLocked
	case ErrCapacityExhausted:
		return http.StatusInsufficientStorage
	case ErrUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrSizeMismatch:
		return http.StatusBadRequest
	case ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// GatewayError is an error with a gateway error code and optional path.
type GatewayError struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Is matches two GatewayErrors by code, so errors.Is works against the
// sentinel constructors below.
func (e *GatewayError) Is(target error) bool {
	var ge *GatewayError
	if errors.As(target, &ge) {
		return e.Code == ge.Code
	}
	return false
}

// New creates a GatewayError with the given code and message.
func New(code ErrorCode, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// NewWithPath creates a GatewayError carrying the offending virtual path.
func NewWithPath(code ErrorCode, message, path string) *GatewayError {
	return &GatewayError{Code: code, Message: message, Path: path}
}

// Wrap creates a GatewayError wrapping a cause.
func Wrap(code ErrorCode, message string, err error) *GatewayError {
	return &GatewayError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from any error in the chain; ok is false
// when the error is not a GatewayError.
func CodeOf(err error) (ErrorCode, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given gateway error code.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// Describe renders an error as a client-safe reason string: the code and
// message for gateway errors, a generic label otherwise. Upstream error text
// is never surfaced.
func Describe(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return fmt.Sprintf("%s: %s", ge.Code, ge.Message)
	}
	return "internal error"
}
