// Package apierr classifies lifecycle errors by kind so the HTTP surface
// can map them onto status codes without inspecting error strings.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a coarse error taxonomy shared by every lifecycle component.
type Kind int

const (
	// Internal covers unanticipated OS/system errors.
	Internal Kind = iota
	InvalidArgument
	NotFound
	Conflict
	Storage
	Networking
	Hypervisor
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Storage:
		return "StorageError"
	case Networking:
		return "NetworkingError"
	case Hypervisor:
		return "HypervisorError"
	default:
		return "Internal"
	}
}

// Error wraps an underlying cause with a Kind for HTTP status mapping.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Invalidf(format string, args ...interface{}) error {
	return &Error{Kind: InvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps an error's Kind onto the HTTP status the surface must
// return: InvalidArgument maps to 400, NotFound to 404 and Conflict to 409;
// every other kind is a 500. The message is not part of the mapping: the
// HTTP surface's respondError carries it in the "error" field.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
