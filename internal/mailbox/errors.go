package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies connector-level failures. All of them abort the
// affected account's run; none of them are retried within the run.
type ErrorKind string

const (
	// KindAuthFailed marks bad credentials. The account is flagged for
	// user attention but not deactivated.
	KindAuthFailed ErrorKind = "authentication_failed"
	// KindTimeout marks an exceeded dial or command deadline.
	KindTimeout ErrorKind = "connection_timeout"
	// KindNetwork marks any other transport-level failure.
	KindNetwork ErrorKind = "network_error"
	// KindMailboxUnavailable marks a missing or inaccessible INBOX.
	KindMailboxUnavailable ErrorKind = "mailbox_unavailable"
)

// Error is a classified connector failure for one account
type Error struct {
	Kind  ErrorKind
	Email string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Email, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the classification of a connector error, or "" when err is
// not a connector error.
func Kind(err error) ErrorKind {
	var connErr *Error
	if errors.As(err, &connErr) {
		return connErr.Kind
	}
	return ""
}

// classifyTransport maps dial/command failures to timeout or network kinds
func classifyTransport(email string, err error) *Error {
	kind := KindNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Email: email, Err: err}
}

// transportErr classifies a failed round-trip, preferring the context
// error when the run deadline is what tore the connection down
func transportErr(ctx context.Context, email string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classifyTransport(email, ctxErr)
	}
	return classifyTransport(email, err)
}

// classifyLogin decides between a credential rejection and a transport
// failure during LOGIN. Server rejections come back as plain IMAP NO
// responses; anything that looks like a connection problem stays transient.
func classifyLogin(email string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classifyTransport(email, err)
	}
	if strings.Contains(err.Error(), "connection closed") {
		return &Error{Kind: KindNetwork, Email: email, Err: err}
	}
	return &Error{Kind: KindAuthFailed, Email: email, Err: err}
}
