package hsm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// HSMInterface defines the custodial secret operations
type HSMInterface interface {
	// PIN Operations
	HashPIN(pin string, salt []byte) (string, error)
	VerifyPIN(pin string, hashedPIN string) (bool, error)

	// Custodial key storage
	EncryptPrivateKey(privateKey string) (string, error)
	DecryptPrivateKey(encrypted string) (string, error)

	GenerateTransactionID() string
}

// HSMServer implements HSMInterface with a master key held in process memory
type HSMServer struct {
	masterKey   []byte
	auditLogger *AuditLogger
}

// Config holds HSM configuration
type Config struct {
	MasterKey   string
	AuditLogger *AuditLogger
	Salt        []byte // Optional: if nil, will be generated
}

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// InitHSM initializes the HSM server
func InitHSM(config Config) (*HSMServer, error) {
	if config.MasterKey == "" {
		return nil, errors.New("Master Key Required")
	}

	salt := config.Salt
	if salt == nil {
		// Keys encrypted under a random salt cannot be read after a restart
		log.Println("[HSM] No salt configured, generating an ephemeral one")
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	auditLogger := config.AuditLogger
	if auditLogger == nil {
		auditLogger = NewAuditLogger()
	}

	hsm := &HSMServer{
		masterKey:   deriveKey(config.MasterKey, string(salt), 32),
		auditLogger: auditLogger,
	}

	hsm.auditLogger.LogOperation(hsm.GenerateTransactionID(), "system", "HSM_INIT", "HSM initialized successfully")
	return hsm, nil
}

// ValidPIN reports whether pin is exactly four digits
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// HashPIN hashes a PIN using Argon2
func (h *HSMServer) HashPIN(pin string, salt []byte) (string, error) {
	if len(salt) == 0 {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	hash := argon2.IDKey([]byte(pin), salt, 1, 64*1024, 4, 32)

	// salt + hash
	result := make([]byte, len(salt)+len(hash))
	copy(result, salt)
	copy(result[len(salt):], hash)

	return base64.StdEncoding.EncodeToString(result), nil
}

// VerifyPIN verifies a PIN against its hash
func (h *HSMServer) VerifyPIN(pin string, hashedPIN string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(hashedPIN)
	if err != nil {
		return false, fmt.Errorf("invalid PIN hash format: %w", err)
	}

	if len(decoded) < 16 {
		return false, errors.New("PIN hash too short")
	}

	salt := decoded[:16]
	storedHash := decoded[16:]

	inputHash := argon2.IDKey([]byte(pin), salt, 1, 64*1024, 4, 32)

	return subtle.ConstantTimeCompare(inputHash, storedHash) == 1, nil
}

// EncryptPrivateKey seals a hex encoded wallet key for storage
func (h *HSMServer) EncryptPrivateKey(privateKey string) (string, error) {
	if privateKey == "" {
		return "", errors.New("private key is empty")
	}

	encrypted, err := h.encryptWithMasterKey([]byte(privateKey))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt private key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// DecryptPrivateKey opens a key produced by EncryptPrivateKey
func (h *HSMServer) DecryptPrivateKey(encrypted string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("invalid encrypted key format: %w", err)
	}

	plaintext, err := h.decryptWithMasterKey(data)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt private key: %w", err)
	}

	return string(plaintext), nil
}

// GenerateTransactionID creates an opaque reference for audit records
func (h *HSMServer) GenerateTransactionID() string {
	random := make([]byte, 8)
	rand.Read(random)

	data := fmt.Sprintf("%s:%d:%x", uuid.New().String(), time.Now().UnixNano(), random)
	hashed := sha256.Sum256([]byte(data))

	return fmt.Sprintf("TX%x", hashed[:8])
}

func (h *HSMServer) encryptWithMasterKey(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.masterKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (h *HSMServer) decryptWithMasterKey(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.masterKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func deriveKey(password, salt string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), 3, 32*1024, 4, keyLen)
}
