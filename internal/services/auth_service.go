package services

import (
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/cmleshore-dotcom/cayden-bank-sub001/internal/models"
)

// Login outcomes. Locked and Rejected are normal, reportable results, not
// exception paths.
const (
	LoginOutcomeAllowed  = "ALLOWED"
	LoginOutcomeLocked   = "LOCKED"
	LoginOutcomeRejected = "REJECTED"
)

type AuthService struct {
	db        *sql.DB
	guard     *LoginGuard
	audit     *AuditRecorder
	validator *validator.Validate
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
}

// LoginResponse represents the login response
// @Description Login response structure
type LoginResponse struct {
	Outcome           string       `json:"outcome" example:"ALLOWED"`            // ALLOWED, LOCKED or REJECTED
	RetryAfterSeconds int64        `json:"retryAfterSeconds,omitempty"`          // Set when outcome is LOCKED
	User              *models.User `json:"user,omitempty"`                       // Set when outcome is ALLOWED
}

func NewAuthService(db *sql.DB, guard *LoginGuard, audit *AuditRecorder) *AuthService {
	return &AuthService{
		db:        db,
		guard:     guard,
		audit:     audit,
		validator: validator.New(),
	}
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password, enforcing brute-force lockout
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login allowed"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} LoginResponse "Credentials rejected"
// @Failure 423 {object} LoginResponse "Account locked"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	ip := clientIP(r)

	var user models.User
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, email, first_name, last_name, password FROM users WHERE email = $1`,
		strings.ToLower(req.Email)).
		Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		if auditErr := s.audit.Record(nil, models.AuditLoginFailure, map[string]string{
			"email":  req.Email,
			"reason": "unknown user",
		}, ip); auditErr != nil {
			log.Printf("[AUTH] Failed to record audit entry: %v", auditErr)
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		sendLoginResponse(w, http.StatusUnauthorized, &LoginResponse{Outcome: LoginOutcomeRejected})
		return
	}

	// Lock state is checked before the credential check so a locked account
	// cannot be bypassed with valid credentials.
	if err := s.guard.CheckAllowed(user.ID); err != nil {
		var locked *LockedError
		if errors.As(err, &locked) {
			log.Printf("[AUTH] Login rejected, user %d locked for %s", user.ID, locked.RetryAfter)
			sendLoginResponse(w, http.StatusLocked, &LoginResponse{
				Outcome:           LoginOutcomeLocked,
				RetryAfterSeconds: int64(locked.RetryAfter.Seconds()) + 1,
			})
			return
		}
		log.Printf("[AUTH] Lock check failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user %d", user.ID)
		if err := s.recordRejection(user.ID, ip); err != nil {
			log.Printf("[AUTH] Failed to record login failure for user %d: %v", user.ID, err)
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		sendLoginResponse(w, http.StatusUnauthorized, &LoginResponse{Outcome: LoginOutcomeRejected})
		return
	}

	if err := s.recordAllowed(&user, ip); err != nil {
		log.Printf("[AUTH] Failed to record login success for user %d: %v", user.ID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	now := time.Now()
	user.LastLogin = &now
	sendLoginResponse(w, http.StatusOK, &LoginResponse{Outcome: LoginOutcomeAllowed, User: &user})
}

// recordRejection pairs the guard counter update with the LOGIN_FAILURE audit
// entry in one transaction. A rejection the audit trail cannot hold is an
// error, not a rejection.
func (s *AuthService) recordRejection(userID int, ip string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.guard.RecordFailureTx(tx, userID, ip); err != nil {
		return err
	}
	if err := s.audit.RecordTx(tx, &userID, models.AuditLoginFailure, map[string]string{
		"reason": "invalid credentials",
	}, ip); err != nil {
		return err
	}

	return tx.Commit()
}

// recordAllowed resets the guard and writes the LOGIN_SUCCESS audit entry in
// one transaction.
func (s *AuthService) recordAllowed(user *models.User, ip string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.guard.RecordSuccessTx(tx, user.ID); err != nil {
		return err
	}
	if err := s.audit.RecordTx(tx, &user.ID, models.AuditLoginSuccess, map[string]string{
		"email": user.Email,
	}, ip); err != nil {
		return err
	}

	return tx.Commit()
}

func sendLoginResponse(w http.ResponseWriter, statusCode int, resp *LoginResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
