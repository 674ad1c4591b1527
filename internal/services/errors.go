package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientFunds indicates a debit would push the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAccountNotFound indicates no account matched the given id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotActive indicates the account is closed or frozen.
	ErrAccountNotActive = errors.New("account not active")
	// ErrAuditWriteFailed indicates the audit row could not be written; the
	// enclosing transaction must roll back.
	ErrAuditWriteFailed = errors.New("audit write failed")
	// ErrIntegrityViolation indicates a concurrent update invalidated the
	// balance this transaction read.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// LockedError is returned when login is rejected because the account is
// temporarily locked. It is a normal, reportable outcome.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("login locked, retry after %s", e.RetryAfter.Round(time.Second))
}
