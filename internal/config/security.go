package config

import (
	"os"
	"strconv"
	"time"
)

type SecurityConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	// LockoutRenewal controls whether failures while already locked push the
	// lock expiry forward. Off by default: the lock is fixed from first trip.
	LockoutRenewal bool
}

func LoadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxLoginAttempts: getEnvAsInt("SECURITY_MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:  getEnvAsDuration("SECURITY_LOCKOUT_DURATION", 15*time.Minute),
		LockoutRenewal:   getEnvAsBool("SECURITY_LOCKOUT_RENEWAL", false),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
