package config

import (
	"os"
	"strconv"
	"time"
)

type USSDConfig struct {
	PinMaxRetries     int
	PinLockDuration   time.Duration
	HistoryLimit      int
	SessionLockTTL    time.Duration
	SessionLockWait   time.Duration
	ResponseCacheTTL  time.Duration
	ConfirmTimeout    time.Duration
	DefaultFundAmount string
}

func LoadUSSDConfig() *USSDConfig {
	return &USSDConfig{
		PinMaxRetries:     getEnvAsInt("USSD_PIN_MAX_RETRIES", 3),
		PinLockDuration:   getEnvAsDuration("USSD_PIN_LOCK_DURATION", 5*time.Minute),
		HistoryLimit:      getEnvAsInt("USSD_HISTORY_LIMIT", 5),
		SessionLockTTL:    getEnvAsDuration("USSD_SESSION_LOCK_TTL", 90*time.Second),
		SessionLockWait:   getEnvAsDuration("USSD_SESSION_LOCK_WAIT", 5*time.Second),
		ResponseCacheTTL:  getEnvAsDuration("USSD_RESPONSE_CACHE_TTL", 3*time.Minute),
		ConfirmTimeout:    getEnvAsDuration("MESSAGE_CONFIRM_TIMEOUT", 2*time.Minute),
		DefaultFundAmount: getEnv("USSD_DEFAULT_FUND_AMOUNT", "5"),
	}
}

// submitMargin covers nonce lookup, gas estimation and broadcast on top of
// the receipt wait.
const submitMargin = 30 * time.Second

// LockTTL returns the per-phone lease for a chain whose receipt wait is
// receiptTimeout. The lease must outlive a whole submission, so a configured
// TTL below receiptTimeout+submitMargin is raised to it.
func (c *USSDConfig) LockTTL(receiptTimeout time.Duration) time.Duration {
	if receiptTimeout <= 0 {
		receiptTimeout = 30 * time.Second // chain.Dial default
	}
	floor := receiptTimeout + submitMargin
	if c.SessionLockTTL < floor {
		return floor
	}
	return c.SessionLockTTL
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultVal
}
