package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/cmleshore-dotcom/cayden-bank-sub001/internal/models"
)

// AccountService orchestrates a transfer end-to-end: validate, debit, credit,
// round-up and audit, all inside one database transaction.
type AccountService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	audit     *AuditRecorder
	validator *ValidationHelper
}

// TransferRequest represents the transfer request payload
// @Description Transfer request structure
type TransferRequest struct {
	TransferID    string `json:"transferId" example:"7b1d2c48-9f3e-4a6b-8c1d-2e5f7a9b3c4d"`              // Idempotency key; generated when omitted
	FromAccountID string `json:"fromAccountId" validate:"required" example:"acc_1001"`                   // Source account
	ToAccountID   string `json:"toAccountId" validate:"required,nefield=FromAccountID" example:"acc_2002"` // Destination account
	Amount        int64  `json:"amount" validate:"required,gt=0" example:"4230"`                         // Amount in cents
	Narration     string `json:"narration,omitempty" validate:"max=200" example:"rent"`                  // Free-form note
	UserID        *int   `json:"userId,omitempty"`                                                       // Initiating user, if any
}

// TransferResult represents the outcome of a transfer
// @Description Transfer result structure
type TransferResult struct {
	TransferID    string `json:"transferId"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	RoundUpAmount int64  `json:"roundUpAmount"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

func NewAccountService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, audit *AuditRecorder) *AccountService {
	return &AccountService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		audit:     audit,
		validator: NewValidationHelper(),
	}
}

// Transfer applies a transfer request exactly once. Retries with the same
// transfer id are answered from the transfers table without touching any
// balance. Every failure after the debit rolls the debit back too.
func (s *AccountService) Transfer(req *TransferRequest, ip string) (*TransferResult, error) {
	if req.TransferID == "" {
		req.TransferID = uuid.NewString()
	}

	if dup := s.duplicateResult(req.TransferID); dup != nil {
		log.Printf("[TRANSFER] Duplicate transfer detected: %s, status: %s", req.TransferID, dup.Status)
		return dup, nil
	}

	// Pre-checks; the authoritative checks happen again under the row locks.
	source, err := s.fetchAccount(req.FromAccountID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("source account %s: %w", source.ID, ErrAccountNotActive)
	}
	if source.Balance < req.Amount {
		return nil, ErrInsufficientFunds
	}

	dest, err := s.fetchAccount(req.ToAccountID)
	if err != nil {
		return nil, err
	}
	if dest.Status != models.AccountStatusActive {
		return nil, fmt.Errorf("destination account %s: %w", dest.ID, ErrAccountNotActive)
	}

	// The linked savings account, when round-up is in play, is part of the
	// lock set from the start: all row locks are taken in one sorted pass so
	// a concurrent transfer touching the same savings account cannot hold
	// locks in the opposite order.
	supplement := int64(0)
	savingsID := ""
	if source.AccountType == models.AccountTypeChecking && source.LinkedAccountID != nil {
		if r := ComputeRoundUp(req.Amount); r > 0 {
			savings, err := s.fetchAccount(*source.LinkedAccountID)
			switch {
			case err == nil:
				supplement = r
				savingsID = savings.ID
			case errors.Is(err, ErrAccountNotFound):
				// Nothing to divert into; the transfer proceeds without round-up.
			default:
				return nil, err
			}
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lockIDs := []string{source.ID, dest.ID}
	if savingsID != "" {
		lockIDs = append(lockIDs, savingsID)
	}
	accounts, err := s.ledger.LockAccountsTx(tx, lockIDs...)
	if err != nil {
		return nil, err
	}

	lockedSource, lockedDest := accounts[source.ID], accounts[dest.ID]
	if _, err := s.ledger.applyTo(tx, lockedSource, -req.Amount, req.TransferID); err != nil {
		return nil, err
	}
	if _, err := s.ledger.applyTo(tx, lockedDest, req.Amount, req.TransferID); err != nil {
		return nil, err
	}

	roundUp := int64(0)
	if savingsID != "" {
		roundUp, err = s.applyRoundUpTx(tx, lockedSource, accounts[savingsID], supplement, req, ip)
		if err != nil {
			return nil, err
		}
	}

	if err := s.storeTransferTx(tx, req, roundUp); err != nil {
		return nil, err
	}

	err = s.audit.RecordTx(tx, req.UserID, models.AuditTransfer, map[string]any{
		"transfer_id":  req.TransferID,
		"from_account": source.ID,
		"to_account":   dest.ID,
		"amount":       req.Amount,
	}, ip)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.markProcessed(req.TransferID)
	go s.notifyTransfer(req)

	return &TransferResult{
		TransferID:    req.TransferID,
		Status:        "COMPLETED",
		Amount:        req.Amount,
		RoundUpAmount: roundUp,
	}, nil
}

// applyRoundUpTx diverts the round-up supplement from the checking account to
// its linked savings account, both already locked by the caller. A savings
// account that is closed or frozen or has round-up disabled, or a checking
// balance that cannot cover the supplement, skips the round-up silently:
// policy, not failure.
func (s *AccountService) applyRoundUpTx(tx *sql.Tx, checking, savings *models.Account, supplement int64, req *TransferRequest, ip string) (int64, error) {
	if !savings.RoundUpEnabled || savings.Status != models.AccountStatusActive {
		return 0, nil
	}

	if checking.Balance < supplement {
		log.Printf("[ROUNDUP] Skipping round-up for transfer %s: balance cannot cover supplement", req.TransferID)
		return 0, nil
	}

	if _, err := s.ledger.applyTo(tx, checking, -supplement, req.TransferID); err != nil {
		return 0, err
	}
	if _, err := s.ledger.applyTo(tx, savings, supplement, req.TransferID); err != nil {
		return 0, err
	}

	err := s.audit.RecordTx(tx, req.UserID, models.AuditRoundUpApplied, map[string]any{
		"transfer_id":     req.TransferID,
		"from_account":    checking.ID,
		"savings_account": savings.ID,
		"amount":          supplement,
	}, ip)
	if err != nil {
		return 0, err
	}

	return supplement, nil
}

func (s *AccountService) fetchAccount(accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRow(`
		SELECT id, account_type, balance, status, round_up_enabled, linked_account_id, version
		FROM accounts
		WHERE id = $1 OR account_number = $1
		LIMIT 1`, accountID).Scan(&account.ID, &account.AccountType, &account.Balance,
		&account.Status, &account.RoundUpEnabled, &account.LinkedAccountID, &account.Version)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// duplicateResult answers a retried transfer from its idempotency record,
// checking the redis marker first and the transfers table authoritatively.
func (s *AccountService) duplicateResult(transferID string) *TransferResult {
	if s.redis != nil {
		status, err := s.redis.Get(context.Background(), "transfer:"+transferID).Result()
		if err == nil {
			return &TransferResult{TransferID: transferID, Status: status, Duplicate: true}
		}
	}

	var transfer models.Transfer
	err := s.db.QueryRow(`
		SELECT transfer_id, amount, round_up_amount, status
		FROM transfers WHERE transfer_id = $1`, transferID).
		Scan(&transfer.TransferID, &transfer.Amount, &transfer.RoundUpAmount, &transfer.Status)
	if err != nil {
		return nil
	}

	return &TransferResult{
		TransferID:    transfer.TransferID,
		Status:        transfer.Status,
		Amount:        transfer.Amount,
		RoundUpAmount: transfer.RoundUpAmount,
		Duplicate:     true,
	}
}

func (s *AccountService) storeTransferTx(tx *sql.Tx, req *TransferRequest, roundUp int64) error {
	_, err := tx.Exec(`
		INSERT INTO transfers (transfer_id, from_account_id, to_account_id, amount, round_up_amount, status, narration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.TransferID, req.FromAccountID, req.ToAccountID, req.Amount, roundUp, "COMPLETED", req.Narration, time.Now())
	return err
}

func (s *AccountService) markProcessed(transferID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(context.Background(), "transfer:"+transferID, "COMPLETED", 24*time.Hour).Err(); err != nil {
		log.Printf("[TRANSFER] Failed to cache idempotency marker for %s: %v", transferID, err)
	}
}

func (s *AccountService) notifyTransfer(req *TransferRequest) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := s.redis.RPush(context.Background(), "notification_queue", data).Err(); err != nil {
		log.Printf("[TRANSFER] Failed to queue notification for %s: %v", req.TransferID, err)
	}
}

// CreateTransfer handles a transfer request
// @Summary Create a transfer
// @Description Move money between two accounts, applying round-up when the source is a checking account linked to a round-up-enabled savings account
// @Tags transfers
// @Accept json
// @Produce json
// @Param transfer body TransferRequest true "Transfer data"
// @Success 201 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transfers [post]
func (s *AccountService) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	log.Printf("[TRANSFER] Transfer request from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransferRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := s.Transfer(&req, clientIP(r))
	if err != nil {
		log.Printf("[TRANSFER] Transfer %s failed: %v", req.TransferID, err)
		switch {
		case errors.Is(err, ErrAccountNotFound):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInsufficientFunds):
			SendErrorResponse(w, "Insufficient funds", http.StatusUnprocessableEntity, nil)
		case errors.Is(err, ErrAccountNotActive):
			SendErrorResponse(w, "Account not active", http.StatusUnprocessableEntity, nil)
		default:
			SendErrorResponse(w, "Failed to process transfer", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.Duplicate {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(result)
}

// GetLedgerHistory retrieves the ledger entries for an account
// @Summary Get ledger history
// @Description Retrieve the full ordered ledger entry sequence for an account
// @Tags accounts
// @Produce json
// @Param accountId query string true "Account ID"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts/ledger [get]
func (s *AccountService) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	if accountID == "" {
		SendErrorResponse(w, "accountId is required", http.StatusBadRequest, nil)
		return
	}

	entries, err := s.ledger.History(accountID)
	if err != nil {
		log.Printf("[LEDGER] Failed to fetch history for %s: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch ledger history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// AccountBalanceEnquiry retrieves the balance for an account
// @Summary Get account balance
// @Description Retrieve the current balance for an active account
// @Tags accounts
// @Produce json
// @Param accountId query string true "Account ID"
// @Success 200 {object} object{accountId=string,availableBalance=int64,status=string}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /accounts/balance-enquiry [get]
func (s *AccountService) AccountBalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))
	log.Printf("[ACCOUNT_ENQUIRY] Balance enquiry for accountId: %s from IP: %s", accountID, r.RemoteAddr)

	if accountID == "" {
		SendErrorResponse(w, "accountId is required", http.StatusBadRequest, nil)
		return
	}

	var balance int64
	var status string
	err := s.db.QueryRow(`
		SELECT balance, status FROM accounts
		WHERE id = $1 OR account_number = $1
		LIMIT 1`, accountID).Scan(&balance, &status)
	if err != nil {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	if status != models.AccountStatusActive {
		SendErrorResponse(w, "Account not active", http.StatusForbidden, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId":        accountID,
		"availableBalance": balance,
		"status":           status,
	})
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
