package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindParse Kind = iota + 1
	KindUnreachable
	KindBadStatus
	KindUnsupportedContentType
	KindBodyRead
	KindSourceTooLarge
	KindDecode
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindUnreachable:
		return "unreachable"
	case KindBadStatus:
		return "bad_status"
	case KindUnsupportedContentType:
		return "unsupported_content_type"
	case KindBodyRead:
		return "body_read"
	case KindSourceTooLarge:
		return "source_too_large"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	default:
		return "unknown"
	}
}

// Error tags a stage failure with its kind. Err is kept for logging only;
// the response never depends on it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind carried by err, or 0 when err is not a stage error.
func KindOf(err error) Kind {
	var stageErr *Error
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return 0
}

// StatusPolicy maps failure kinds to HTTP statuses.
type StatusPolicy struct {
	// GatewayErrors answers 502 instead of 404 for transport and body read failures.
	GatewayErrors bool
}

func (p StatusPolicy) Status(kind Kind) int {
	switch kind {
	case KindEncode:
		return http.StatusInternalServerError
	case KindUnreachable, KindBodyRead:
		if p.GatewayErrors {
			return http.StatusBadGateway
		}
		return http.StatusNotFound
	default:
		return http.StatusNotFound
	}
}
