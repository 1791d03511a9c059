package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService issues the bearer tokens that guard the operator API. A
// single operator account is configured through operator.id and
// operator.password_hash.
type AuthService struct {
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest represents the operator login payload
type LoginRequest struct {
	OperatorID string `json:"operatorId" validate:"required" example:"ops"`
	Password   string `json:"password" validate:"required,min=8" example:"correct-horse"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewAuthService(redisClient *redis.Client) *AuthService {
	return &AuthService{
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Login exchanges operator credentials for a JWT
// @Summary Operator login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
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

	configuredID := viper.GetString("operator.id")
	if configuredID == "" || subtle.ConstantTimeCompare([]byte(req.OperatorID), []byte(configuredID)) != 1 ||
		!verifyPassword(req.Password, viper.GetString("operator.password_hash")) {
		log.Printf("[AUTH] Invalid credentials for operator %q", req.OperatorID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, expiresAt, err := generateJWT(req.OperatorID, time.Now())
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for %s: %v", req.OperatorID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for operator %s", req.OperatorID)
	SendJSON(w, http.StatusOK, AuthResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout revokes the presented token until it expires
// @Summary Operator logout
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ok && token != "" && s.redis != nil {
		if err := s.revoke(r.Context(), token, time.Now()); err != nil {
			log.Printf("[AUTH] Failed to blacklist token: %v", err)
			SendErrorResponse(w, "Logout failed", http.StatusInternalServerError, nil)
			return
		}
	}

	SendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// revoke stores the token in the blacklist checked by AuthMiddleware.
func (s *AuthService) revoke(ctx context.Context, token string, now time.Time) error {
	ttl := tokenExpiry()
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			ttl = exp.Sub(now)
		}
	}
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, "blacklist:"+token, "1", ttl).Err()
}

func tokenExpiry() time.Duration {
	hours := viper.GetInt("jwt.expiry_hours")
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func generateJWT(operatorID string, now time.Time) (string, time.Time, error) {
	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}

	expiresAt := now.Add(tokenExpiry())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   operatorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString([]byte(secret))
	return signed, expiresAt, err
}

type argon2Params struct {
	time, memory uint32
	threads      uint8
	keyLength    uint32
	saltLength   int
}

func loadArgon2Params() argon2Params {
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	return argon2Params{
		time:       uint32(viper.GetInt("argon2.time")),
		memory:     uint32(viper.GetInt("argon2.memory")),
		threads:    uint8(viper.GetInt("argon2.threads")),
		keyLength:  uint32(viper.GetInt("argon2.key_length")),
		saltLength: viper.GetInt("argon2.salt_length"),
	}
}

// HashPassword produces the salt$hash value expected in
// operator.password_hash.
func HashPassword(password string) (string, error) {
	p := loadArgon2Params()
	salt := make([]byte, p.saltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLength)
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

	p := loadArgon2Params()
	computedHash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
