package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation was rejected.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindArithmetic    Kind = "arithmetic"
	KindConstraint    Kind = "constraint"
)

// Code is the stable machine-readable rejection code.
type Code string

const (
	CodeUnauthorized         Code = "Unauthorized"
	CodeInvalidAuthAccount   Code = "InvalidAuthAccount"
	CodeAlreadyInitialized   Code = "AlreadyInitialized"
	CodeAccountNotFound      Code = "AccountNotFound"
	CodeVaultAlreadySet      Code = "VaultAlreadySet"
	CodeInvalidStatus        Code = "InvalidStatus"
	CodeNumericalOverflow    Code = "NumericalOverflow"
	CodeInsufficientFunds    Code = "InsufficientFunds"
	CodeSlippageExceeded     Code = "SlippageExceeded"
	CodeInvalidAccount       Code = "InvalidAccount"
	CodeOutsideFundingWindow Code = "OutsideFundingWindow"
	CodeBelowMinimumDeposit  Code = "BelowMinimumDeposit"
	CodeVaultNotBound        Code = "VaultNotBound"
	CodeNotSettled           Code = "NotSettled"
	CodeInvalidSchedule      Code = "InvalidSchedule"
	CodeInvalidSlippage      Code = "InvalidSlippage"
	CodeInvalidAmount        Code = "InvalidAmount"
)

var codeKinds = map[Code]Kind{
	CodeUnauthorized:         KindAuthorization,
	CodeInvalidAuthAccount:   KindAuthorization,
	CodeAlreadyInitialized:   KindState,
	CodeAccountNotFound:      KindState,
	CodeVaultAlreadySet:      KindState,
	CodeInvalidStatus:        KindState,
	CodeOutsideFundingWindow: KindState,
	CodeNotSettled:           KindState,
	CodeNumericalOverflow:    KindArithmetic,
	CodeInsufficientFunds:    KindArithmetic,
	CodeSlippageExceeded:     KindArithmetic,
	CodeInvalidAccount:       KindConstraint,
	CodeBelowMinimumDeposit:  KindConstraint,
	CodeVaultNotBound:        KindConstraint,
	CodeInvalidSchedule:      KindConstraint,
	CodeInvalidSlippage:      KindConstraint,
	CodeInvalidAmount:        KindConstraint,
}

// Error is a domain rejection. It aborts the enclosing atomic unit.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Code, e.Message)
}

// Is matches by code so callers can compare against the exported sentinels.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Reject builds a rejection for code; the kind is implied by the code.
func Reject(code Code, format string, args ...interface{}) *Error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindConstraint
	}
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the rejection kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// CodeOf returns the rejection code of err, or "".
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

var (
	ErrUnauthorized         = &Error{Kind: KindAuthorization, Code: CodeUnauthorized}
	ErrInvalidAuthAccount   = &Error{Kind: KindAuthorization, Code: CodeInvalidAuthAccount}
	ErrAlreadyInitialized   = &Error{Kind: KindState, Code: CodeAlreadyInitialized}
	ErrAccountNotFound      = &Error{Kind: KindState, Code: CodeAccountNotFound}
	ErrVaultAlreadySet      = &Error{Kind: KindState, Code: CodeVaultAlreadySet}
	ErrInvalidStatus        = &Error{Kind: KindState, Code: CodeInvalidStatus}
	ErrOutsideFundingWindow = &Error{Kind: KindState, Code: CodeOutsideFundingWindow}
	ErrNotSettled           = &Error{Kind: KindState, Code: CodeNotSettled}
	ErrNumericalOverflow    = &Error{Kind: KindArithmetic, Code: CodeNumericalOverflow}
	ErrInsufficientFunds    = &Error{Kind: KindArithmetic, Code: CodeInsufficientFunds}
	ErrSlippageExceeded     = &Error{Kind: KindArithmetic, Code: CodeSlippageExceeded}
	ErrInvalidAccount       = &Error{Kind: KindConstraint, Code: CodeInvalidAccount}
	ErrBelowMinimumDeposit  = &Error{Kind: KindConstraint, Code: CodeBelowMinimumDeposit}
	ErrVaultNotBound        = &Error{Kind: KindConstraint, Code: CodeVaultNotBound}
	ErrInvalidSchedule      = &Error{Kind: KindConstraint, Code: CodeInvalidSchedule}
	ErrInvalidSlippage      = &Error{Kind: KindConstraint, Code: CodeInvalidSlippage}
	ErrInvalidAmount        = &Error{Kind: KindConstraint, Code: CodeInvalidAmount}
)
