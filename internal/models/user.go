package models

import "time"

// User is the custodial wallet owner, keyed by phone number.
type User struct {
	PhoneNumber    string     `json:"phoneNumber" db:"phone_number"`
	PublicKey      string     `json:"publicKey" db:"public_key"`          // EVM address
	PrivateKey     string     `json:"-" db:"private_key_enc"`             // AES-GCM ciphertext, base64
	PIN            string     `json:"-" db:"pin_hash"`                    // Argon2id salt||hash, base64
	PinRetries     int        `json:"pinRetries" db:"pin_retries"`
	PinLockedUntil *time.Time `json:"pinLockedUntil,omitempty" db:"pin_locked_until"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
}
