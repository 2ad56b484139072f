// Package cerror defines the typed error kinds surfaced by the device
// channel. It is kept separate from the root castv2 package (which
// re-exports it) so internal transport packages can return a typed error
// without importing back up to the facade package.
package cerror

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure into one of the categories the channel
// guarantees to distinguish.
type Kind string

const (
	// KindIO covers socket open/read/write failures, malformed frames,
	// and short reads. The channel is marked CLOSED.
	KindIO Kind = "IO"
	// KindTimeout covers a request that received no correlated reply
	// within its deadline. The channel remains OPEN.
	KindTimeout Kind = "Timeout"
	// KindAuth covers a rejected or failed authentication handshake.
	KindAuth Kind = "Auth"
	// KindLaunchFailed covers a device-reported LAUNCH_ERROR.
	KindLaunchFailed Kind = "LaunchFailed"
	// KindIllegalState covers use of a stopped application controller or
	// an operation attempted before connecting.
	KindIllegalState Kind = "IllegalState"
	// KindMediaRequest covers media-namespace responses whose type is in
	// the media error set.
	KindMediaRequest Kind = "MediaRequest"
	// KindInvalidRequest covers a receiver-namespace request the device
	// rejected as malformed (e.g. STOP with an unknown session id) —
	// a protocol-level result, not a transport failure, so it never
	// tears the channel down.
	KindInvalidRequest Kind = "InvalidRequest"
)

// Error is the error type returned across the whole public API. Cause,
// when set, is wrapped with github.com/pkg/errors so %+v still prints a
// stack trace captured at the point of failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Format implements fmt.Formatter so that %+v also prints the stack
// trace carried by Cause; every other verb formats Error().
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.Cause != nil {
		fmt.Fprintf(s, "%s: %s: %+v", e.Kind, e.Message, e.Cause)
		return
	}
	fmt.Fprintf(s, fmt.FormatString(s, verb), e.Error())
}

// Unwrap exposes Cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New returns an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error of the given kind wrapping cause. The message is
// also recorded against the pkg/errors chain so the wrapped error retains
// a stack trace.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: pkgerrors.Wrap(cause, message)}
}

// Is reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
