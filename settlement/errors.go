package settlement

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendRejected matches any structured error returned by the backend.
	ErrBackendRejected = errors.New("settlement: backend rejected request")
	// ErrTransport matches network failures, timeouts and unparseable responses.
	ErrTransport = errors.New("settlement: transport failure")
)

// ErrorKind distinguishes rejected requests from transport failures.
type ErrorKind int

const (
	KindRejected ErrorKind = iota + 1
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error describes a failed backend call.
type Error struct {
	Op      string
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "settlement %s %s", e.Op, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status=%d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrBackendRejected and ErrTransport by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBackendRejected:
		return e.Kind == KindRejected
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

// Detail returns the most useful human readable description of err.
func Detail(err error) string {
	var se *Error
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		if se.Err != nil {
			return se.Err.Error()
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
