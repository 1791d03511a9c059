package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

// OperatorKey holds the authenticated operator id in the request context.
const OperatorKey contextKey = "operatorID"

const revokedKeyPrefix = "blacklist:"

var revocations *redis.Client

// InitAuthMiddleware enables token revocation checks against Redis. A nil
// client disables them.
func InitAuthMiddleware(rdb *redis.Client) {
	revocations = rdb
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Extract token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		token := parts[1]

		if revoked(r.Context(), token) {
			http.Error(w, "Token revoked", http.StatusUnauthorized)
			return
		}

		operatorID, err := validateToken(token)
		if err != nil {
			log.Printf("[AUTH] AuthMiddleware - rejected token: %v", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OperatorKey, operatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFromContext returns the operator id set by AuthMiddleware.
func OperatorFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(OperatorKey).(string)
	return id, ok && id != ""
}

func revoked(ctx context.Context, token string) bool {
	if revocations == nil {
		return false
	}
	n, err := revocations.Exists(ctx, revokedKeyPrefix+token).Result()
	if err != nil {
		log.Printf("[AUTH] revocation check failed: %v", err)
		return false
	}
	return n > 0
}

func validateToken(tokenString string) (string, error) {
	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("token invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	if id, ok := claims["user_id"]; ok {
		return fmt.Sprintf("%v", id), nil
	}
	return "", errors.New("token has no subject")
}
