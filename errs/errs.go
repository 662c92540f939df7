// Package errs provides structured error types and helpers for the ledger core.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a broad error category.
type Code string

const (
	// CodeInvalid indicates malformed or mutually exclusive input rejected before touching the store.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict indicates a violated business precondition.
	CodeConflict Code = "conflict"
	// CodeUnavailable indicates the store is temporarily unreachable.
	CodeUnavailable Code = "unavailable"
	// CodeInternal indicates an unexpected failure.
	CodeInternal Code = "internal"
)

// CanonicalCode narrows a Code to a specific ledger condition.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalMutuallyExclusiveFilters flags query parameters that cannot be combined.
	CanonicalMutuallyExclusiveFilters CanonicalCode = "mutually_exclusive_filters"
	// CanonicalInvalidSubaccountNumber flags a parent or child number outside its range.
	CanonicalInvalidSubaccountNumber CanonicalCode = "invalid_subaccount_number"
	// CanonicalSubaccountNotFound flags a missing subaccount row.
	CanonicalSubaccountNotFound CanonicalCode = "subaccount_not_found"
	// CanonicalMarketNotFound flags a missing perpetual market row.
	CanonicalMarketNotFound CanonicalCode = "market_not_found"
	// CanonicalPositionClosed flags an attempt to mutate a closed position.
	CanonicalPositionClosed CanonicalCode = "position_closed"
	// CanonicalUnsupportedOrderFlags flags an order category the translator does not resend.
	CanonicalUnsupportedOrderFlags CanonicalCode = "unsupported_order_flags"
	// CanonicalInvalidDecimal flags a value that is not a valid decimal string.
	CanonicalInvalidDecimal CanonicalCode = "invalid_decimal"
)

// E captures structured error information produced across the ledger core.
type E struct {
	Component string
	Code      Code
	Message   string
	Canonical CanonicalCode
	Fields    map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithFields merges the provided key/value context into the envelope.
func WithFields(fields map[string]string) Option {
	return func(e *E) {
		for k, v := range fields {
			WithField(k, v)(e)
		}
	}
}

// WithField appends a single key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string, 1)
		}
		e.Fields[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" && e.cause == nil && len(e.Fields) == 0 {
		return e.Message
	}
	var parts []string
	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	component := e.Component
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Fields[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is matches another envelope by code and canonical code so errors.Is works with sentinels.
func (e *E) Is(target error) bool {
	var other *E
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	if other.Code != e.Code {
		return false
	}
	return other.Canonical == CanonicalUnknown || other.Canonical == e.Canonical
}

// IsCode reports whether err carries an envelope with the given code.
func IsCode(err error, code Code) bool {
	var e *E
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CanonicalOf returns the canonical code of err, or CanonicalUnknown.
func CanonicalOf(err error) CanonicalCode {
	var e *E
	if !errors.As(err, &e) {
		return CanonicalUnknown
	}
	return e.Canonical
}

// Invalid is shorthand for a validation error.
func Invalid(component string, canonical CanonicalCode, msg string) *E {
	return New(component, CodeInvalid, WithMessage(msg), WithCanonicalCode(canonical))
}

// NotFound is shorthand for a missing-entity domain error.
func NotFound(component string, canonical CanonicalCode, msg string) *E {
	return New(component, CodeNotFound, WithMessage(msg), WithCanonicalCode(canonical))
}
