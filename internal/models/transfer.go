package models

import "time"

// Transfer is the idempotency record for one money-movement request. The
// transfer_id is the caller-supplied idempotency key; a retried request with
// the same id is answered from this row, never re-applied.
type Transfer struct {
	ID            int       `json:"id" db:"id"`
	TransferID    string    `json:"transferId" db:"transfer_id"`
	FromAccountID string    `json:"fromAccountId" db:"from_account_id"`
	ToAccountID   string    `json:"toAccountId" db:"to_account_id"`
	Amount        int64     `json:"amount" db:"amount"` // in cents
	RoundUpAmount int64     `json:"roundUpAmount" db:"round_up_amount"`
	Status        string    `json:"status" db:"status"`
	Narration     string    `json:"narration,omitempty" db:"narration"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
