package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setArgon2TestConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
}

func newAuthServiceForTest(db *sql.DB) *AuthService {
	audit := NewAuditRecorder(db)
	guard := NewLoginGuard(db, audit, guardConfig())
	return NewAuthService(db, guard, audit)
}

func loginBody(t *testing.T, email, password string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(LoginRequest{Email: email, Password: password})
	assert.NoError(t, err)
	return bytes.NewBuffer(body)
}

const userLookupQuery = "SELECT id, email, first_name, last_name, password FROM users WHERE email = \\$1"

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setArgon2TestConfig()
	service := newAuthServiceForTest(db)

	t.Run("successful login resets the guard", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery(userLookupQuery).
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(1, "test@example.com", "John", "Doe", hashedPassword))
		mock.ExpectQuery("SELECT locked_until FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(nil))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET failed_login_attempts = 0, locked_until = NULL").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(sqlmock.AnyArg(), "LOGIN_SUCCESS", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "test@example.com", "password123"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp LoginResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, LoginOutcomeAllowed, resp.Outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wrong password records a failure", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery(userLookupQuery).
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(1, "test@example.com", "John", "Doe", hashedPassword))
		mock.ExpectQuery("SELECT locked_until FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(nil))
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET failed_login_attempts = failed_login_attempts \\+ 1").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(1, nil))
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(sqlmock.AnyArg(), "LOGIN_FAILURE", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "test@example.com", "wrongpassword"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp LoginResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, LoginOutcomeRejected, resp.Outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("audit failure on a valid login surfaces as server error", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery(userLookupQuery).
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(1, "test@example.com", "John", "Doe", hashedPassword))
		mock.ExpectQuery("SELECT locked_until FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(nil))
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET failed_login_attempts = 0, locked_until = NULL").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO audit_logs").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "test@example.com", "password123"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		// The guard reset must not survive when the audit trail lost the login.
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("audit failure on a rejection surfaces as server error", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery(userLookupQuery).
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(1, "test@example.com", "John", "Doe", hashedPassword))
		mock.ExpectQuery("SELECT locked_until FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(nil))
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE users SET failed_login_attempts = failed_login_attempts \\+ 1").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(1, nil))
		mock.ExpectExec("INSERT INTO audit_logs").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "test@example.com", "wrongpassword"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locked account is rejected before the credential check", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")
		lockedUntil := time.Now().Add(10 * time.Minute)

		mock.ExpectQuery(userLookupQuery).
			WithArgs("test@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password"}).
				AddRow(1, "test@example.com", "John", "Doe", hashedPassword))
		mock.ExpectQuery("SELECT locked_until FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"locked_until"}).AddRow(lockedUntil))

		// Valid credentials must not bypass the lock
		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "test@example.com", "password123"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusLocked, w.Code)
		var resp LoginResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, LoginOutcomeLocked, resp.Outcome)
		assert.Greater(t, resp.RetryAfterSeconds, int64(0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user is rejected and audited", func(t *testing.T) {
		mock.ExpectQuery(userLookupQuery).
			WithArgs("nobody@example.com").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(nil, "LOGIN_FAILURE", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		r := httptest.NewRequest("POST", "/auth/login", loginBody(t, "nobody@example.com", "password123"))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setArgon2TestConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
}
