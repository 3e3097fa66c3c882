package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes a tick failure for retry policy purposes.
type ErrorKind string

const (
	// KindInfra marks failures attributable to the synthesis worker's
	// availability (timeouts, connection failures, 5xx). Infra failures
	// never consume a task's attempt budget.
	KindInfra ErrorKind = "infra"

	// KindDomain marks failures in the worker's produced result itself
	// (generation or register validation failed). Consumes one attempt.
	KindDomain ErrorKind = "domain"

	// KindDecision marks unusable sensed input (empty or unreadable
	// protocol text). Consumes one attempt; no worker call is made.
	KindDecision ErrorKind = "decision"
)

// ClassifiedError carries a typed kind so downstream code never has to
// inspect error text. The gateway produces these directly; substring
// matching is only a fallback for opaque errors from elsewhere.
type ClassifiedError struct {
	Kind ErrorKind
	msg  string
	err  error
}

func (e *ClassifiedError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ClassifiedError) Unwrap() error {
	return e.err
}

// NewInfraError creates an infrastructure-classified error.
func NewInfraError(format string, args ...interface{}) error {
	return &ClassifiedError{Kind: KindInfra, msg: fmt.Sprintf(format, args...)}
}

// NewDomainError creates a domain-classified error.
func NewDomainError(format string, args ...interface{}) error {
	return &ClassifiedError{Kind: KindDomain, msg: fmt.Sprintf(format, args...)}
}

// NewDecisionError creates a decision-classified error.
func NewDecisionError(format string, args ...interface{}) error {
	return &ClassifiedError{Kind: KindDecision, msg: fmt.Sprintf(format, args...)}
}

// WrapInfra wraps err with an infrastructure classification.
func WrapInfra(err error, msg string) error {
	return &ClassifiedError{Kind: KindInfra, msg: msg, err: err}
}

// WrapDomain wraps err with a domain classification.
func WrapDomain(err error, msg string) error {
	return &ClassifiedError{Kind: KindDomain, msg: msg, err: err}
}

// infraMarkers are substrings that identify transient upstream failures in
// opaque error text: network-level failures, gateway 5xx responses, and
// explicit unavailability signals.
var infraMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"host unreachable",
	"network is unreachable",
	"broken pipe",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"unavailable",
}

// Classify resolves an error to its kind. Typed errors win; context
// cancellation and deadline expiry count as infra (the attempt never
// genuinely ran); anything else falls back to substring inspection and,
// failing that, is treated conservatively as a domain failure.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindDomain
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInfra
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies the substring taxonomy to raw error text.
// Retained as a pragmatic fallback for errors that arrive untyped.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	for _, marker := range infraMarkers {
		if strings.Contains(lower, marker) {
			return KindInfra
		}
	}
	return KindDomain
}

// IsInfra reports whether err classifies as an infrastructure failure.
func IsInfra(err error) bool {
	return Classify(err) == KindInfra
}
