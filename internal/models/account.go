package models

import "time"

// Account type and status values form closed sets; anything else is rejected
// before it reaches the ledger.
const (
	AccountTypeChecking = "CHECKING"
	AccountTypeSavings  = "SAVINGS"

	AccountStatusActive = "ACTIVE"
	AccountStatusClosed = "CLOSED"
	AccountStatusFrozen = "FROZEN"
)

type Account struct {
	ID              string    `json:"id" db:"id"`
	UserID          int       `json:"userId" db:"user_id"`
	AccountType     string    `json:"accountType" db:"account_type"` // CHECKING or SAVINGS
	AccountNumber   string    `json:"accountNumber" db:"account_number"`
	RoutingNumber   string    `json:"routingNumber" db:"routing_number"`
	Balance         int64     `json:"balance" db:"balance"` // in cents
	Status          string    `json:"status" db:"status"`
	RoundUpEnabled  bool      `json:"roundUpEnabled" db:"round_up_enabled"` // savings accounts only
	LinkedAccountID *string   `json:"linkedAccountId,omitempty" db:"linked_account_id"`
	Version         int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}
