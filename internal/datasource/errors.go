package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrorKind places an error in the console's failure taxonomy.
type ErrorKind int

const (
	// KindTransport covers network/auth failures during list, watch and logs.
	// They are recoverable and trigger reconnects.
	KindTransport ErrorKind = iota
	// KindAction covers mutations rejected by the API. Reported, never retried.
	KindAction
	// KindParse covers invalid edited manifests. Never sent to the cluster.
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAction:
		return "action"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Reason refines an error for display and retry decisions.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonUnreachable
	ReasonUnauthorized
	ReasonForbidden
	ReasonNotFound
	ReasonConflict
	ReasonInvalid
	ReasonRateLimited
	ReasonServerError
	ReasonTLS
	ReasonOffline
	ReasonUnsupported
)

// Error is a classified cluster error.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrOffline is returned by every call of the offline client.
var ErrOffline = &Error{
	Kind:    KindTransport,
	Reason:  ReasonOffline,
	Message: "no cluster configured (offline mode)",
}

// NewParseError builds a KindParse error.
func NewParseError(message string, err error) error {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return &Error{Kind: KindParse, Reason: ReasonInvalid, Message: message, Err: err}
}

// NewUnsupportedError builds a KindAction error for operations a type does not offer.
func NewUnsupportedError(message string) error {
	return &Error{Kind: KindAction, Reason: ReasonUnsupported, Message: message}
}

// Classify converts a raw client error into an *Error of the given kind.
// Errors that are already classified pass through unchanged.
func Classify(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var statusErr *k8serrors.StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.Status().Code
		msg := statusErr.Status().Message
		switch {
		case code == http.StatusUnauthorized:
			return &Error{Kind: kind, Reason: ReasonUnauthorized, Message: "unauthorized: credentials expired or invalid", Err: err}
		case code == http.StatusForbidden:
			return &Error{Kind: kind, Reason: ReasonForbidden, Message: msg, Err: err}
		case code == http.StatusNotFound:
			return &Error{Kind: kind, Reason: ReasonNotFound, Message: msg, Err: err}
		case code == http.StatusConflict:
			return &Error{Kind: kind, Reason: ReasonConflict, Message: "conflict: the resource was modified, reload and retry", Err: err}
		case code == http.StatusUnprocessableEntity || code == http.StatusBadRequest:
			return &Error{Kind: kind, Reason: ReasonInvalid, Message: msg, Err: err}
		case code == http.StatusTooManyRequests:
			return &Error{Kind: kind, Reason: ReasonRateLimited, Message: "too many requests", Err: err}
		case code >= 500:
			return &Error{Kind: kind, Reason: ReasonServerError, Message: fmt.Sprintf("server error (%d): %s", code, msg), Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: kind, Reason: ReasonUnreachable, Message: "request timed out", Err: err}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "x509") || strings.Contains(errStr, "certificate") || strings.Contains(errStr, "tls:") {
		return &Error{Kind: kind, Reason: ReasonTLS, Message: "TLS verification failed: " + errStr, Err: err}
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") || strings.Contains(errStr, "EOF") {
		return &Error{Kind: kind, Reason: ReasonUnreachable, Message: "cluster unreachable: " + errStr, Err: err}
	}

	return &Error{Kind: kind, Reason: ReasonUnknown, Message: errStr, Err: err}
}

// ReasonOf returns the classified reason of err, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Reason
	}
	return ReasonUnknown
}

// KindOf returns the classified kind of err; unclassified errors are transport errors.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindTransport
}

// IsPermanent reports whether retrying err can never succeed in this process.
// Auth failures are not permanent: RBAC or credentials may be fixed while the
// session keeps retrying.
func IsPermanent(err error) bool {
	switch ReasonOf(err) {
	case ReasonOffline, ReasonUnsupported:
		return true
	default:
		return false
	}
}
