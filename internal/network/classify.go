package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// DefaultRetryAfter applies when a 429 carries no usable Retry-After header.
const DefaultRetryAfter = 60 * time.Second

// AuthPathPrefix marks endpoints whose rate limits also apply to the whole auth surface.
const AuthPathPrefix = "/auth/"

// AuthPattern is the broader pattern recorded for rate limits observed under AuthPathPrefix.
const AuthPattern = "/auth/*"

// Error is a classified transport or HTTP failure.
type Error struct {
	Kind       Kind
	StatusCode int
	// RetryAfter is set for rate-limited responses.
	RetryAfter time.Duration
	Path       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps a failure to exactly one kind. online is the platform connectivity flag and
// decides whether an unreachable host means the client is offline or the server is down.
// A nil error yields the empty kind.
func Classify(err error, online bool) Kind {
	if err == nil {
		return ""
	}

	var netErr *Error
	if errors.As(err, &netErr) && netErr.Kind != "" {
		return netErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return KindTimeout
	}

	if isUnreachable(err) {
		if !online {
			return KindOffline
		}
		return KindServerError
	}

	if strings.Contains(err.Error(), "429") {
		return KindRateLimited
	}

	return KindUnknown
}

// isUnreachable detects failures where no HTTP exchange took place at all.
func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ClassifyStatus maps an HTTP status code to a kind. 2xx/3xx yield the empty kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status < 400:
		return ""
	case status == http.StatusUnauthorized:
		return KindAuthError
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindBadRequest
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// ParseRetryAfter interprets a Retry-After header given either as delay-seconds or as an
// HTTP-date. Absent, unparseable, or non-positive values yield DefaultRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return DefaultRetryAfter
}

// FromResponse classifies a non-success response. For 429 it also resolves the
// Retry-After delay. Returns nil for success statuses.
func FromResponse(resp *http.Response, now time.Time) *Error {
	if resp == nil {
		return nil
	}
	kind := ClassifyStatus(resp.StatusCode)
	if kind == "" {
		return nil
	}
	e := &Error{Kind: kind, StatusCode: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		e.Path = resp.Request.URL.Path
	}
	if kind == KindRateLimited {
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), now)
	}
	return e
}

// RecordRateLimit stores a rate-limit window for path and, when the path is under the auth
// prefix, for the broader auth pattern as well. path is relative to the API base URL.
func RecordRateLimit(tracker *RateLimitTracker, path string, d time.Duration) {
	if tracker == nil || path == "" {
		return
	}
	tracker.Limit(path, d)
	if strings.HasPrefix(path, AuthPathPrefix) && len(path) > len(AuthPathPrefix) {
		tracker.Limit(AuthPattern, d)
	}
}
