package models

import (
	"time"
)

// LedgerEntry is the immutable record of one balance change. Entries are never
// updated or deleted; corrections are new offsetting entries.
type LedgerEntry struct {
	ID         int       `json:"id" db:"id"`
	TransferID string    `json:"transfer_id" db:"transfer_id"`
	AccountID  string    `json:"account_id" db:"account_id"`
	Amount     int64     `json:"amount" db:"amount"` // signed, in cents
	EntryType  string    `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Balance    int64     `json:"balance" db:"balance"` // resulting balance snapshot
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
