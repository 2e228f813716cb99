package upstream

import (
	"errors"
	"fmt"
)

// ErrTokenMissing reports that the server answered the token endpoint but
// supplied no token. Submission must stay disabled in that case.
var ErrTokenMissing = errors.New("upstream: no submission token in response")

// ErrorKind classifies gateway failures per the two-level taxonomy:
// transport failures (no usable response reached us) and application-level
// error envelopes (the server answered, but with status "error", a non-2xx
// code, or an unparsable body).
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindEnvelope
)

// APIError is the tagged error value all gateway operations return instead
// of letting transport errors escape. It never carries a panic.
type APIError struct {
	Kind    ErrorKind
	Op      string // e.g. "list posts"
	Status  int    // HTTP status, 0 for transport failures
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("upstream: %s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("upstream: %s: %s (HTTP %d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("upstream: %s: %s", e.Op, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

func transportErr(op string, err error) *APIError {
	return &APIError{Kind: KindTransport, Op: op, Err: err}
}

func envelopeErr(op string, status int, message string) *APIError {
	return &APIError{Kind: KindEnvelope, Op: op, Status: status, Message: message}
}

// IsTransport reports whether err is a transport-level failure. The comment
// submit fallback only fires on these, never on application rejections.
func IsTransport(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Kind == KindTransport
}
