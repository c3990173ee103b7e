package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/nguyenhoangdanh/dnsecure-sub000/internal/network"
)

// messageExpressions locate a human-readable message in the error payload shapes seen from
// the backend and its proxies. The first expression yielding a non-empty string wins.
var messageExpressions = []string{
	"message",
	"error.message",
	"error_description",
	"error",
	"errors[0].message",
	"errors[0]",
	"detail",
	"title",
}

// fieldExpressions locate the offending input field for validation errors.
var fieldExpressions = []string{
	"field",
	"error.field",
	"errors[0].field",
}

const genericMessage = "Something went wrong. Please try again."

// ParsePayload turns a non-success HTTP response body into an AppError in one step.
// Bodies may be empty, non-JSON, or loosely shaped; the result always carries a non-empty
// message.
func ParsePayload(status int, body []byte) *AppError {
	kind := network.ClassifyStatus(status)
	if kind == "" {
		kind = network.KindUnknown
	}

	var doc any
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			doc = nil
		}
	}

	message := searchString(doc, messageExpressions)
	if message == "" {
		message = kind.DefaultMessage()
	}

	appErr := &AppError{
		Code:       codeForKind(kind),
		Message:    message,
		Field:      searchString(doc, fieldExpressions),
		StatusCode: status,
		Kind:       kind,
	}
	return appErr
}

func searchString(doc any, expressions []string) string {
	if doc == nil {
		return ""
	}
	for _, expr := range expressions {
		v, err := jmespath.Search(expr, doc)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func codeForKind(kind network.Kind) ErrorCode {
	switch kind {
	case network.KindBadRequest:
		return ErrCodeValidation
	case network.KindAuthError:
		return ErrCodeAuthentication
	case network.KindNotFound:
		return ErrCodeNotFound
	case network.KindRateLimited:
		return ErrCodeRateLimited
	case network.KindTimeout:
		return ErrCodeTimeout
	default:
		return ErrCodeNetwork
	}
}

// Normalize converts any error into an AppError, classifying transport failures with the
// platform online flag. AppErrors pass through unchanged. Returns nil for nil.
func Normalize(err error, online bool) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err, Kind: network.KindTimeout}
	}

	kind := network.Classify(err, online)
	out := &AppError{
		Code:    codeForKind(kind),
		Message: kind.DefaultMessage(),
		Cause:   err,
		Kind:    kind,
	}

	var netErr *network.Error
	if errors.As(err, &netErr) {
		out.StatusCode = netErr.StatusCode
		out.RetryAfter = netErr.RetryAfter
		if netErr.Message != "" {
			out.Message = netErr.Message
		}
	}
	if out.StatusCode == 0 && kind == network.KindRateLimited {
		out.StatusCode = http.StatusTooManyRequests
	}
	return out
}

// UserMessage returns the single human-readable string shown for err. Never empty for a
// non-nil error; empty for nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if msg := strings.TrimSpace(appErr.Message); msg != "" {
			return msg
		}
		if appErr.Kind != "" {
			return appErr.Kind.DefaultMessage()
		}
		return genericMessage
	}
	if kind := KindOf(err); kind != "" {
		return kind.DefaultMessage()
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return genericMessage
}
