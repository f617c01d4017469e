// Package vaulterr defines the structured error returned by every vault operation.
package vaulterr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure. The set is closed.
type Kind string

const (
	AccessDenied    Kind = "AccessDenied"
	NotFound        Kind = "NotFound"
	Timeout         Kind = "Timeout"
	Unknown         Kind = "Unknown"
	BusinessLogic   Kind = "BusinessLogic"
	ExternalService Kind = "ExternalService"
	Validation      Kind = "Validation"
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{AccessDenied, NotFound, Timeout, Unknown, BusinessLogic, ExternalService, Validation}

func (k Kind) number() uint64 {
	switch k {
	case NotFound:
		return 1
	case Validation:
		return 2
	case BusinessLogic:
		return 3
	case ExternalService:
		return 4
	case AccessDenied:
		return 5
	case Timeout:
		return 6
	default:
		return 7
	}
}

// HTTPStatus maps the kind to the status code used by the HTTP API.
func (k Kind) HTTPStatus() int {
	switch k {
	case AccessDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Timeout:
		return http.StatusGatewayTimeout
	case BusinessLogic:
		return http.StatusConflict
	case ExternalService:
		return http.StatusBadGateway
	case Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Module identifies the component an error originates from. It forms the
// leading digits of an error code.
type Module uint64

const (
	ModuleStrategy Module = 300101
	ModulePool     Module = 300102
	ModuleEvent    Module = 300103
	ModuleLedger   Module = 300201
	ModuleDEX      Module = 300202
	ModuleRanker   Module = 300203
	ModuleAPI      Module = 300301
)

// Code composes module, kind and a per-site number into a stable numeric code:
// MMMMMMKKNN.
func Code(m Module, k Kind, n uint8) uint64 {
	return uint64(m)*10_000 + k.number()*100 + uint64(n)
}

// Detail is one key/value pair attached to an error.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Error is the structured failure value.
type Error struct {
	Code    uint64   `json:"code"`
	Kind    Kind     `json:"kind"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`

	cause error
}

// New builds an Error. kv is read as alternating keys and values; a trailing
// key without a value is dropped.
func New(m Module, k Kind, n uint8, msg string, kv ...string) *Error {
	return &Error{Code: Code(m, k, n), Kind: k, Message: msg, Details: pairs(kv)}
}

func NewNotFound(m Module, n uint8, msg string, kv ...string) *Error {
	return New(m, NotFound, n, msg, kv...)
}

func NewValidation(m Module, n uint8, msg string, kv ...string) *Error {
	return New(m, Validation, n, msg, kv...)
}

func NewBusinessLogic(m Module, n uint8, msg string, kv ...string) *Error {
	return New(m, BusinessLogic, n, msg, kv...)
}

func NewAccessDenied(m Module, n uint8, msg string, kv ...string) *Error {
	return New(m, AccessDenied, n, msg, kv...)
}

// Wrap builds an Error of the given kind that keeps err as its cause.
func Wrap(m Module, k Kind, n uint8, msg string, err error, kv ...string) *Error {
	e := New(m, k, n, msg, kv...)
	e.cause = err
	if err != nil {
		e.Details = append(e.Details, Detail{Key: "cause", Value: err.Error()})
	}
	return e
}

// FromAdapter wraps a failure returned by an external collaborator. Deadline
// expiry becomes Timeout, an Error already carrying a kind keeps it, and any
// other failure becomes ExternalService.
func FromAdapter(m Module, n uint8, op string, err error, kv ...string) *Error {
	if err == nil {
		return nil
	}
	kv = append([]string{"operation", op}, kv...)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(m, Timeout, n, op+" timed out", err, kv...)
	default:
		var ve *Error
		if errors.As(err, &ve) {
			return Wrap(m, ve.Kind, n, op+": "+ve.Message, err, kv...)
		}
		return Wrap(m, ExternalService, n, op+" failed", err, kv...)
	}
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Key+"="+d.Value)
	}
	return fmt.Sprintf("%s (%d): %s [%s]", e.Kind, e.Code, e.Message, strings.Join(parts, " "))
}

func (e *Error) Unwrap() error { return e.cause }

// With returns a copy of e with one more detail appended.
func (e *Error) With(key, value string) *Error {
	c := *e
	c.Details = append(append([]Detail(nil), e.Details...), Detail{Key: key, Value: value})
	return &c
}

// Detail returns the value stored under key.
func (e *Error) Detail(key string) (string, bool) {
	for _, d := range e.Details {
		if d.Key == key {
			return d.Value, true
		}
	}
	return "", false
}

// KindOf returns the kind of the first Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Unknown
}

// Response converts any error into the value returned to callers.
func Response(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ModuleAPI, Timeout, 1, "operation timed out", err)
	}
	return Wrap(ModuleAPI, Unknown, 1, "unexpected error", err)
}

func pairs(kv []string) []Detail {
	if len(kv) < 2 {
		return nil
	}
	out := make([]Detail, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Detail{Key: kv[i], Value: kv[i+1]})
	}
	return out
}
