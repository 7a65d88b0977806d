package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for failures that don't carry extra context.
var (
	ErrNotFound     = errors.New("billing: not found")
	ErrInvalidInput = errors.New("billing: invalid input")
	ErrUnauthorized = errors.New("billing: unauthorized")
)

// ErrKind classifies an error the way spec.md §7 enumerates them, so
// HTTP handlers and callers can map an error to a status code without
// string-matching messages.
type ErrKind string

const (
	KindValidation ErrKind = "validation"
	KindNotFound   ErrKind = "not_found"
	KindConflict   ErrKind = "conflict"
	KindPayment    ErrKind = "payment"
	KindDatabase   ErrKind = "database"
	KindIntegrity  ErrKind = "integrity"
)

// ValidationError reports a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("billing: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Kind() ErrKind { return KindValidation }

// ConflictKind distinguishes the two ways a write can conflict with
// existing state.
type ConflictKind string

const (
	ConflictIdempotency ConflictKind = "idempotency"
	ConflictDuplicate   ConflictKind = "duplicate"
)

// ConflictError reports that a write collided with an existing entity
// — either an idempotency key already in flight/completed, or a
// uniqueness constraint (e.g. an invoice already existing for a
// period).
type ConflictError struct {
	Kind       ConflictKind
	ExistingID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("billing: conflict (%s), existing id %s", e.Kind, e.ExistingID)
}

func (e ConflictError) ErrKind() ErrKind { return KindConflict }

// PaymentError wraps a failure from the payment gateway or payment
// state machine, carrying the gateway-reported reason when available.
type PaymentError struct {
	GatewayPaymentID string
	Reason           string
	Err              error
}

func (e PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("billing: payment %s failed: %s: %v", e.GatewayPaymentID, e.Reason, e.Err)
	}
	return fmt.Sprintf("billing: payment %s failed: %s", e.GatewayPaymentID, e.Reason)
}

func (e PaymentError) Unwrap() error { return e.Err }
func (e PaymentError) ErrKind() ErrKind { return KindPayment }

// DatabaseError wraps a store-layer failure (connection, transaction,
// migration) that the caller should treat as retryable infrastructure
// trouble rather than a business-rule rejection.
type DatabaseError struct {
	Op  string
	Err error
}

func (e DatabaseError) Error() string {
	return fmt.Sprintf("billing: database error during %s: %v", e.Op, e.Err)
}

func (e DatabaseError) Unwrap() error { return e.Err }
func (e DatabaseError) ErrKind() ErrKind { return KindDatabase }

// IntegrityError reports that a reconciliation pass found a
// discrepancy between two authoritative sources (HES vs DES,
// aggregate vs recomputed total, local vs gateway payment state) that
// could not be auto-resolved.
type IntegrityError struct {
	Scope   string
	Key     string
	Detail  string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("billing: integrity discrepancy in %s for %s: %s", e.Scope, e.Key, e.Detail)
}

func (e IntegrityError) ErrKind() ErrKind { return KindIntegrity }

// Kind classifies err per spec.md §7, defaulting to KindDatabase for
// anything unrecognized (the safest default: treat the unknown as
// infrastructure trouble, not a rejected business action).
func Kind(err error) ErrKind {
	var ve ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ce ConflictError
	if errors.As(err, &ce) {
		return KindConflict
	}
	var pe PaymentError
	if errors.As(err, &pe) {
		return KindPayment
	}
	var ie IntegrityError
	if errors.As(err, &ie) {
		return KindIntegrity
	}
	var de DatabaseError
	if errors.As(err, &de) {
		return KindDatabase
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrInvalidInput) {
		return KindValidation
	}
	return KindDatabase
}

// IsNotFound reports whether err (or anything it wraps) is a not-found
// condition.
func IsNotFound(err error) bool {
	return Kind(err) == KindNotFound || errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err is infrastructure trouble a caller
// can reasonably retry, as opposed to a rejected business action.
func IsRetryable(err error) bool {
	k := Kind(err)
	return k == KindDatabase
}
