package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
)

// PinCheck is the outcome of a PIN verification.
type PinCheck struct {
	OK bool
	// Locked is set when the account is (or just became) locked.
	Locked    bool
	Remaining time.Duration
}

// PinPolicy enforces the retry counter and timed lockout shared by every
// PIN-gated operation.
type PinPolicy struct {
	hsm          hsm.HSMInterface
	store        Store
	audit        *hsm.AuditLogger
	maxRetries   int
	lockDuration time.Duration
	now          func() time.Time
}

func NewPinPolicy(h hsm.HSMInterface, store Store, audit *hsm.AuditLogger, maxRetries int, lockDuration time.Duration) *PinPolicy {
	if audit == nil {
		audit = hsm.NewAuditLogger()
	}
	return &PinPolicy{
		hsm:          h,
		store:        store,
		audit:        audit,
		maxRetries:   maxRetries,
		lockDuration: lockDuration,
		now:          time.Now,
	}
}

// LockRemaining reports how long the account stays locked. An expired lock
// counts as unlocked without being written back.
func (p *PinPolicy) LockRemaining(user *models.User) (time.Duration, bool) {
	if user.PinLockedUntil == nil {
		return 0, false
	}
	remaining := user.PinLockedUntil.Sub(p.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// LockMinutes rounds a remaining lock up to whole minutes.
func LockMinutes(remaining time.Duration) int {
	return int((remaining + time.Minute - 1) / time.Minute)
}

// LockedMessage is shown while the lock window is open.
func LockedMessage(remaining time.Duration) string {
	return fmt.Sprintf("PIN locked. Try again in %d minute(s).", LockMinutes(remaining))
}

// Verify checks pin against the stored hash and records the outcome.
func (p *PinPolicy) Verify(ctx context.Context, user *models.User, pin string) (PinCheck, error) {
	if remaining, locked := p.LockRemaining(user); locked {
		return PinCheck{Locked: true, Remaining: remaining}, nil
	}

	if user.PinLockedUntil != nil {
		user.PinLockedUntil = nil
		user.PinRetries = 0
	}

	match, err := p.hsm.VerifyPIN(pin, user.PIN)
	if err != nil {
		return PinCheck{}, fmt.Errorf("verify pin: %w", err)
	}

	if match {
		if user.PinRetries != 0 {
			user.PinRetries = 0
			if err := p.store.SaveUser(ctx, user); err != nil {
				return PinCheck{}, err
			}
		}
		return PinCheck{OK: true}, nil
	}

	user.PinRetries++
	check := PinCheck{}
	if user.PinRetries >= p.maxRetries {
		until := p.now().Add(p.lockDuration)
		user.PinLockedUntil = &until
		user.PinRetries = 0
		check.Locked = true
		check.Remaining = p.lockDuration

		log.Printf("[USSD] PinPolicy - %s locked until %s", user.PhoneNumber, until.Format(time.RFC3339))
		p.audit.LogSecurity(user.PhoneNumber, "PIN_LOCKED", fmt.Sprintf("locked for %s", p.lockDuration))
	} else {
		p.audit.LogSecurity(user.PhoneNumber, "PIN_FAILED", fmt.Sprintf("attempt %d of %d", user.PinRetries, p.maxRetries))
	}

	if err := p.store.SaveUser(ctx, user); err != nil {
		return PinCheck{}, err
	}
	return check, nil
}
