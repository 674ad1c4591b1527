package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// AuditRecorder appends to the audit_logs table. Rows are never updated or
// deleted here; on user deletion the database clears the user reference and
// keeps the row.
type AuditRecorder struct {
	db *sql.DB
}

func NewAuditRecorder(db *sql.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// RecordTx writes an audit row inside the caller's transaction. A failed
// write is returned as ErrAuditWriteFailed so the enclosing action rolls
// back with it: money-movement without an audit trail is a consistency
// violation, not a best-effort log.
func (a *AuditRecorder) RecordTx(tx *sql.Tx, userID *int, action string, details any, ip string) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	_, err = tx.Exec(`
		INSERT INTO audit_logs (user_id, action, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, action, payload, nullableString(ip), time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	log.Printf("[AUDIT] %s: %s", action, payload)
	return nil
}

// Record writes an audit row outside any transaction, for actions that have
// no enclosing money-movement (failed logins, lock expiry checks).
func (a *AuditRecorder) Record(userID *int, action string, details any, ip string) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	_, err = a.db.Exec(`
		INSERT INTO audit_logs (user_id, action, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, action, payload, nullableString(ip), time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWriteFailed, err)
	}

	log.Printf("[AUDIT] %s: %s", action, payload)
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
