// Package errors derives metric tag values from client errors.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/nguyenhoangdanh/dnsecure-sub000/internal/errors"
)

// Classify returns a low-cardinality class for err, suitable for a metric tag.
//
// Client errors report their code; network failures add the transport kind, e.g.
// "network.offline". A bare transport error yields the same "network.<kind>" form. Context
// errors map to "timeout" and "canceled". Anything else falls back to the innermost Go type
// name in snake case.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	kind := apperrors.KindOf(err)
	if code := apperrors.GetCode(err); code != "" {
		if code == apperrors.ErrCodeNetwork && kind != "" {
			return string(code) + "." + string(kind)
		}
		return string(code)
	}
	if kind != "" {
		return string(apperrors.ErrCodeNetwork) + "." + string(kind)
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return string(apperrors.ErrCodeTimeout)
	case goerrors.Is(err, context.Canceled):
		return string(apperrors.ErrCodeCanceled)
	}
	return typeName(err)
}

func typeName(err error) string {
	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
