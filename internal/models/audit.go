package models

import (
	"encoding/json"
	"time"
)

// Audit action codes. The vocabulary is bounded; new codes are additive.
const (
	AuditLoginSuccess   = "LOGIN_SUCCESS"
	AuditLoginFailure   = "LOGIN_FAILURE"
	AuditLoginLockout   = "LOGIN_LOCKOUT"
	AuditTransfer       = "TRANSFER"
	AuditRoundUpApplied = "ROUND_UP_APPLIED"
)

// AuditLogEntry is append-only. UserID is nullable: system-initiated actions
// carry none, and the column is SET NULL when a user row is deleted so the
// history itself survives.
type AuditLogEntry struct {
	ID        int             `json:"id" db:"id"`
	UserID    *int            `json:"user_id,omitempty" db:"user_id"`
	Action    string          `json:"action" db:"action"`
	Details   json.RawMessage `json:"details" db:"details"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
