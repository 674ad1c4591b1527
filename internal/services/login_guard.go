package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/cmleshore-dotcom/cayden-bank-sub001/internal/config"
	"github.com/cmleshore-dotcom/cayden-bank-sub001/internal/models"
)

// LoginGuard tracks failed login attempts per user and enforces temporary
// lockout. The counter and lock live on the users row and every mutation is
// a versioned row update inside a transaction, so the state machine holds
// across concurrent requests and process restarts.
type LoginGuard struct {
	db    *sql.DB
	audit *AuditRecorder
	cfg   *config.SecurityConfig
}

func NewLoginGuard(db *sql.DB, audit *AuditRecorder, cfg *config.SecurityConfig) *LoginGuard {
	if cfg == nil {
		cfg = config.LoadSecurityConfig()
	}
	return &LoginGuard{db: db, audit: audit, cfg: cfg}
}

// CheckAllowed reports whether a login attempt may proceed to the credential
// check. A *LockedError means the account is locked; it carries how long the
// caller should wait. Must run even when credentials would be valid.
func (g *LoginGuard) CheckAllowed(userID int) error {
	var lockedUntil *time.Time
	err := g.db.QueryRow(`SELECT locked_until FROM users WHERE id = $1`, userID).Scan(&lockedUntil)
	if err != nil {
		return err
	}

	if lockedUntil != nil && lockedUntil.After(time.Now()) {
		return &LockedError{RetryAfter: time.Until(*lockedUntil)}
	}

	return nil
}

// RecordFailureTx increments the failed-attempt counter inside the caller's
// transaction and trips the lock when the counter reaches the configured
// threshold, so the caller can pair it atomically with its own audit entry.
// The counter is not reset on the transition into lock; the lock only extends
// on further failures when LockoutRenewal is configured.
func (g *LoginGuard) RecordFailureTx(tx *sql.Tx, userID int, ip string) error {
	var attempts int
	var lockedUntil *time.Time
	err := tx.QueryRow(`
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = $2
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`,
		userID, time.Now()).Scan(&attempts, &lockedUntil)
	if err != nil {
		return err
	}

	alreadyLocked := lockedUntil != nil && lockedUntil.After(time.Now())
	if attempts >= g.cfg.MaxLoginAttempts && (!alreadyLocked || g.cfg.LockoutRenewal) {
		expiry := time.Now().Add(g.cfg.LockoutDuration)
		if _, err := tx.Exec(`UPDATE users SET locked_until = $2 WHERE id = $1`, userID, expiry); err != nil {
			return err
		}

		if !alreadyLocked {
			log.Printf("[GUARD] User %d locked out after %d failed attempts", userID, attempts)
			err := g.audit.RecordTx(tx, &userID, models.AuditLoginLockout, map[string]any{
				"attempts":     attempts,
				"locked_until": expiry,
			}, ip)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// RecordSuccessTx resets the state machine to open: counter 0, no lock.
func (g *LoginGuard) RecordSuccessTx(tx *sql.Tx, userID int) error {
	_, err := tx.Exec(`
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1`,
		userID, time.Now())
	return err
}
