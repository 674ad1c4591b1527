package services

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/cmleshore-dotcom/cayden-bank-sub001/internal/models"
)

// LedgerService owns every balance mutation. A mutation is always the pair
// (ledger entry insert, balance update) inside one database transaction, so
// the balance of any account can be reconstructed by replaying its entries.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// ApplyEntryTx applies a signed amount to an account inside the caller's
// transaction and returns the resulting balance. Debits that would push the
// balance negative return ErrInsufficientFunds with nothing written.
func (s *LedgerService) ApplyEntryTx(tx *sql.Tx, accountID string, amount int64, transferID string) (int64, error) {
	account, err := s.LockAccountTx(tx, accountID)
	if err != nil {
		return 0, err
	}
	return s.applyTo(tx, account, amount, transferID)
}

// TransferTx moves amount between two accounts inside the caller's
// transaction: one debit entry, one credit entry, both balance updates.
func (s *LedgerService) TransferTx(tx *sql.Tx, fromAccountID, toAccountID, transferID string, amount int64) error {
	accounts, err := s.LockAccountsTx(tx, fromAccountID, toAccountID)
	if err != nil {
		return err
	}

	if _, err := s.applyTo(tx, accounts[fromAccountID], -amount, transferID); err != nil {
		return err
	}
	_, err = s.applyTo(tx, accounts[toAccountID], amount, transferID)
	return err
}

// LockAccountsTx locks a set of accounts in lexicographic id order,
// deduplicated, and returns them keyed by the requested identifier. Every
// multi-account caller must take its whole lock set through here; two
// transactions touching overlapping accounts then never hold row locks in
// opposite order.
func (s *LedgerService) LockAccountsTx(tx *sql.Tx, accountIDs ...string) (map[string]*models.Account, error) {
	sorted := append([]string(nil), accountIDs...)
	sort.Strings(sorted)

	accounts := make(map[string]*models.Account, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		account, err := s.LockAccountTx(tx, id)
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}

	return accounts, nil
}

// applyTo writes the entry/balance pair for an account already locked in
// this transaction.
func (s *LedgerService) applyTo(tx *sql.Tx, account *models.Account, amount int64, transferID string) (int64, error) {
	newBalance := account.Balance + amount
	if newBalance < 0 {
		return 0, ErrInsufficientFunds
	}

	entryType := "CREDIT"
	if amount < 0 {
		entryType = "DEBIT"
	}

	if err := s.createLedgerEntry(tx, transferID, account.ID, amount, entryType, newBalance); err != nil {
		return 0, err
	}

	if err := s.updateAccountBalance(tx, account.ID, newBalance, account.Version); err != nil {
		return 0, err
	}

	account.Balance = newBalance
	account.Version++
	return newBalance, nil
}

// History returns the full entry sequence for an account, oldest first.
// Timestamp ties are broken by insertion order.
func (s *LedgerService) History(accountID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, transfer_id, account_id, amount, entry_type, balance, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.TransferID, &entry.AccountID,
			&entry.Amount, &entry.EntryType, &entry.Balance, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LockAccountTx reads an account row under FOR UPDATE so concurrent transfers
// against the same account serialize on the row lock.
func (s *LedgerService) LockAccountTx(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, account_type, balance, status, round_up_enabled, linked_account_id, version, updated_at
		FROM accounts
		WHERE id = $1 OR account_number = $1
		LIMIT 1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.AccountType, &account.Balance,
		&account.Status, &account.RoundUpEnabled, &account.LinkedAccountID,
		&account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func (s *LedgerService) createLedgerEntry(tx *sql.Tx, transferID, accountID string, amount int64, entryType string, balance int64) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (transfer_id, account_id, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		transferID, accountID, amount, entryType, balance, time.Now())
	return err
}

func (s *LedgerService) updateAccountBalance(tx *sql.Tx, accountID string, newBalance int64, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrIntegrityViolation)
	}

	return nil
}
