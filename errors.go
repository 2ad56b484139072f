package castv2

import "github.com/ofmooseandmen/castv2/cerror"

// Kind classifies a failure into one of the categories the controller
// guarantees to distinguish. It is a re-export of cerror.Kind so callers
// never need to import the internal-adjacent leaf package directly.
type Kind = cerror.Kind

// Error is the error type returned across the public API.
type Error = cerror.Error

const (
	KindIO             = cerror.KindIO
	KindTimeout        = cerror.KindTimeout
	KindAuth           = cerror.KindAuth
	KindLaunchFailed   = cerror.KindLaunchFailed
	KindIllegalState   = cerror.KindIllegalState
	KindMediaRequest   = cerror.KindMediaRequest
	KindInvalidRequest = cerror.KindInvalidRequest
)

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return cerror.Is(err, kind)
}
