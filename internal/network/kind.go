// Package network classifies transport failures, tracks rate-limit windows, and exposes the
// platform connectivity signal consumed by health checking.
package network

// Kind is the normalized category of a network or HTTP failure.
type Kind string

const (
	KindOffline     Kind = "offline"
	KindTimeout     Kind = "timeout"
	KindServerError Kind = "server_error"
	KindAuthError   Kind = "authentication_error"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindBadRequest  Kind = "bad_request"
	KindRateLimited Kind = "rate_limited"
	KindUnknown     Kind = "unknown"
)

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindOffline,
		KindTimeout,
		KindServerError,
		KindAuthError,
		KindForbidden,
		KindNotFound,
		KindBadRequest,
		KindRateLimited,
		KindUnknown,
	}
}

// DefaultMessage returns a user-facing message for the kind. Never empty.
func (k Kind) DefaultMessage() string {
	switch k {
	case KindOffline:
		return "You appear to be offline. Check your connection and try again."
	case KindTimeout:
		return "The server took too long to respond. Please try again."
	case KindServerError:
		return "The server is having trouble right now. Please try again later."
	case KindAuthError:
		return "Your session is invalid or has expired. Please sign in again."
	case KindForbidden:
		return "You do not have permission to perform this action."
	case KindNotFound:
		return "The requested resource could not be found."
	case KindBadRequest:
		return "The request was invalid. Please check your input."
	case KindRateLimited:
		return "Too many requests. Please wait a moment and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Retryable reports whether an automatic retry may succeed without user action.
// Rate-limited is excluded: it is deferred past its window, never retried immediately.
func (k Kind) Retryable() bool {
	return k == KindOffline || k == KindTimeout || k == KindServerError
}
