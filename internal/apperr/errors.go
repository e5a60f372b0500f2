// Package apperr defines the error values every core operation returns.
// Callers branch on Kind (how to react) or Code (what happened).
package apperr

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should react.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInvariant  Kind = "invariant_violation"
	KindStorage    Kind = "storage_failure"
	KindAuth       Kind = "unauthorized"
)

// Code identifies the specific failure.
type Code string

const (
	CodeInvalidInput      Code = "invalid_input"
	CodeDuplicateName     Code = "duplicate_name"
	CodeDuplicateContact  Code = "duplicate_contact"
	CodePriceInversion    Code = "price_inversion"
	CodeNotFound          Code = "not_found"
	CodeInsufficientStock Code = "insufficient_stock"
	CodeNegativeStock     Code = "negative_stock"
	CodeWrongType         Code = "wrong_type"
	CodeTooOld            Code = "too_old"
	CodePartialFailure    Code = "partial_failure"
	CodeReturnExceedsSale Code = "return_exceeds_sale"
	CodeAlreadyVoided     Code = "already_voided"
	CodeNotVoided         Code = "not_voided"
	CodeHasReturns        Code = "has_returns"
	CodeBelongsToSale     Code = "belongs_to_sale"
	CodeUnauthorized      Code = "unauthorized"
	CodeStorage           Code = "storage_failure"
)

// Issue describes one failing line of a multi-line request.
type Issue struct {
	ItemID    uint   `json:"item_id"`
	Reason    string `json:"reason"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Error is the error type returned by the ledger, reports and accounts services.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Issues  []Issue
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so sentinels like ErrInsufficientStock work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput      = &Error{Kind: KindValidation, Code: CodeInvalidInput}
	ErrDuplicateName     = &Error{Kind: KindConflict, Code: CodeDuplicateName}
	ErrDuplicateContact  = &Error{Kind: KindConflict, Code: CodeDuplicateContact}
	ErrPriceInversion    = &Error{Kind: KindValidation, Code: CodePriceInversion}
	ErrNotFound          = &Error{Kind: KindNotFound, Code: CodeNotFound}
	ErrInsufficientStock = &Error{Kind: KindConflict, Code: CodeInsufficientStock}
	ErrNegativeStock     = &Error{Kind: KindInvariant, Code: CodeNegativeStock}
	ErrWrongType         = &Error{Kind: KindValidation, Code: CodeWrongType}
	ErrTooOld            = &Error{Kind: KindConflict, Code: CodeTooOld}
	ErrPartialFailure    = &Error{Kind: KindConflict, Code: CodePartialFailure}
	ErrReturnExceedsSale = &Error{Kind: KindValidation, Code: CodeReturnExceedsSale}
	ErrAlreadyVoided     = &Error{Kind: KindConflict, Code: CodeAlreadyVoided}
	ErrNotVoided         = &Error{Kind: KindConflict, Code: CodeNotVoided}
	ErrHasReturns        = &Error{Kind: KindConflict, Code: CodeHasReturns}
	ErrBelongsToSale     = &Error{Kind: KindConflict, Code: CodeBelongsToSale}
	ErrUnauthorized      = &Error{Kind: KindAuth, Code: CodeUnauthorized}
	ErrStorage           = &Error{Kind: KindStorage, Code: CodeStorage}
)

// New builds an Error with a formatted message.
func New(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, CodeInvalidInput, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, CodeNotFound, format, args...)
}

// InsufficientStock carries the numbers the till needs to show the cashier.
func InsufficientStock(available, requested int) *Error {
	return New(KindConflict, CodeInsufficientStock,
		"Insufficient stock. Available: %d, Requested: %d", available, requested)
}

// PartialFailure reports every failing line of a batch; nothing was applied.
func PartialFailure(issues []Issue) *Error {
	e := New(KindConflict, CodePartialFailure, "%d line(s) cannot be fulfilled", len(issues))
	e.Issues = issues
	return e
}

// Storage wraps an unexpected persistence error.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Code: CodeStorage, Message: op + " failed", Err: err}
}

// From returns err as *Error, wrapping anything else as a storage failure.
func From(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Storage(op, err)
}

// KindOf reports the kind of err, or KindStorage for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}
