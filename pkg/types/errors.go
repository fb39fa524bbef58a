package types

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures by how the engine reacts to them.
type ErrorKind int

const (
	// ErrKindValidation: malformed rule or input; surfaced to the caller,
	// rule not mutated.
	ErrKindValidation ErrorKind = iota
	// ErrKindEligibility: rule not due, paused or otherwise ineligible;
	// reported as a skip, not an error.
	ErrKindEligibility
	// ErrKindCalculation: forecast unavailable or insufficient history;
	// recovered locally with reduced confidence.
	ErrKindCalculation
	// ErrKindSupplierSelection: no eligible supplier.
	ErrKindSupplierSelection
	// ErrKindPortTransient: timeout or deadlock from a port; retried with
	// exponential backoff.
	ErrKindPortTransient
	// ErrKindPortPermanent: non-retryable port rejection.
	ErrKindPortPermanent
	// ErrKindBudget: estimated value exceeds remaining budget.
	ErrKindBudget
	// ErrKindQuarantined: rule exceeded its consecutive error cap.
	ErrKindQuarantined
	// ErrKindFatal: unrecoverable; the scheduler halts its tick.
	ErrKindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindValidation:
		return "validation"
	case ErrKindEligibility:
		return "eligibility"
	case ErrKindCalculation:
		return "calculation"
	case ErrKindSupplierSelection:
		return "supplier_selection"
	case ErrKindPortTransient:
		return "port_transient"
	case ErrKindPortPermanent:
		return "port_permanent"
	case ErrKindBudget:
		return "budget"
	case ErrKindQuarantined:
		return "quarantined"
	case ErrKindFatal:
		return "fatal"
	}
	return "unknown"
}

// EngineError carries an ErrorKind alongside the message and cause.
type EngineError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// NewValidationError builds a validation-kind error.
func NewValidationError(msg string) error {
	return &EngineError{Kind: ErrKindValidation, Msg: msg}
}

// NewPortError wraps a port failure, transient or permanent.
func NewPortError(transient bool, msg string, cause error) error {
	kind := ErrKindPortPermanent
	if transient {
		kind = ErrKindPortTransient
	}
	return &EngineError{Kind: kind, Msg: msg, Cause: cause}
}

// NewError builds an EngineError of an arbitrary kind.
func NewError(kind ErrorKind, msg string, cause error) error {
	return &EngineError{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from an error chain, defaulting to fatal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrKindFatal
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	return KindOf(err) == ErrKindPortTransient
}

// SkipResult is the explicit non-error outcome for a rule that was evaluated
// but intentionally not executed.
type SkipResult struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}
