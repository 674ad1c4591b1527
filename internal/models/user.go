package models

import "time"

type User struct {
	ID                  int        `json:"id" db:"id" example:"1"`
	Email               string     `json:"email" db:"email" example:"user@example.com"`
	FirstName           string     `json:"firstName" db:"first_name" example:"John"`
	LastName            string     `json:"lastName" db:"last_name" example:"Doe"`
	PhoneNumber         string     `json:"phoneNumber" db:"phone_number" example:"+15550123456"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"-" db:"locked_until"`
	LastLogin           *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}
