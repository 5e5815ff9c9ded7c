// Package apperr defines the failure taxonomy shared by the ledger services
// and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindArithmetic    Kind = "arithmetic"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

// Code identifies a specific failure. Codes are stable and part of the API.
type Code string

const (
	CodeInvalidInput      Code = "InvalidInput"
	CodeAlreadyExists     Code = "AlreadyExists"
	CodeUnauthorized      Code = "Unauthorized"
	CodeOverflow          Code = "Overflow"
	CodeDeadlinePassed    Code = "DeadlinePassed"
	CodeNotOpen           Code = "NotOpen"
	CodeNotClaimed        Code = "NotClaimed"
	CodeNotAssignedAgent  Code = "NotAssignedAgent"
	CodeNotDelivered      Code = "NotDelivered"
	CodeCannotDispute     Code = "CannotDispute"
	CodeNotCompleted      Code = "NotCompleted"
	CodeNotFound          Code = "NotFound"
	CodeInsufficientFunds Code = "InsufficientFunds"
	CodeConcurrentUpdate  Code = "ConcurrentUpdate"
	CodeFaucetLimit       Code = "FaucetLimit"
)

var codeKinds = map[Code]Kind{
	CodeInvalidInput:      KindValidation,
	CodeDeadlinePassed:    KindValidation,
	CodeUnauthorized:      KindAuthorization,
	CodeNotAssignedAgent:  KindAuthorization,
	CodeFaucetLimit:       KindAuthorization,
	CodeOverflow:          KindArithmetic,
	CodeNotOpen:           KindState,
	CodeNotClaimed:        KindState,
	CodeNotDelivered:      KindState,
	CodeCannotDispute:     KindState,
	CodeNotCompleted:      KindState,
	CodeInsufficientFunds: KindState,
	CodeNotFound:          KindNotFound,
	CodeAlreadyExists:     KindConflict,
	CodeConcurrentUpdate:  KindConflict,
}

// Error is a classified ledger failure.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error carrying the same code, so the package sentinels
// work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New builds an error for code with a formatted message.
func New(code Code, format string, args ...any) *Error {
	k, ok := codeKinds[code]
	if !ok {
		k = KindInternal
	}
	return &Error{Code: code, Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput      = &Error{Code: CodeInvalidInput, Kind: KindValidation}
	ErrAlreadyExists     = &Error{Code: CodeAlreadyExists, Kind: KindConflict}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized, Kind: KindAuthorization}
	ErrOverflow          = &Error{Code: CodeOverflow, Kind: KindArithmetic}
	ErrDeadlinePassed    = &Error{Code: CodeDeadlinePassed, Kind: KindValidation}
	ErrNotOpen           = &Error{Code: CodeNotOpen, Kind: KindState}
	ErrNotClaimed        = &Error{Code: CodeNotClaimed, Kind: KindState}
	ErrNotAssignedAgent  = &Error{Code: CodeNotAssignedAgent, Kind: KindAuthorization}
	ErrNotDelivered      = &Error{Code: CodeNotDelivered, Kind: KindState}
	ErrCannotDispute     = &Error{Code: CodeCannotDispute, Kind: KindState}
	ErrNotCompleted      = &Error{Code: CodeNotCompleted, Kind: KindState}
	ErrNotFound          = &Error{Code: CodeNotFound, Kind: KindNotFound}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Kind: KindState}
	ErrConcurrentUpdate  = &Error{Code: CodeConcurrentUpdate, Kind: KindConflict}
	ErrFaucetLimit       = &Error{Code: CodeFaucetLimit, Kind: KindAuthorization}
)

// InvalidInput is shorthand for New(CodeInvalidInput, ...).
func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, format, args...)
}

// Unauthorized is shorthand for New(CodeUnauthorized, ...).
func Unauthorized(format string, args ...any) *Error {
	return New(CodeUnauthorized, format, args...)
}

// NotFound is shorthand for New(CodeNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindState, KindConflict:
		return http.StatusConflict
	case KindArithmetic:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
