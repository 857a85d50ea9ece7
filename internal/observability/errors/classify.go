// Package errors maps errors to low-cardinality classes for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strconv"
	"strings"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify returns a short error class: "timeout", "canceled", "http_<status>" for errors
// carrying an HTTP status, and otherwise the innermost error type in snake case.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	var sc StatusCoder
	if goerrors.As(err, &sc) {
		if code := sc.HTTPStatus(); code > 0 {
			return "http_" + strconv.Itoa(code)
		}
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
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
