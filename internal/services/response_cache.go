package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResponseCache replays terminal responses for gateway retries of an
// identical request within the same session.
type ResponseCache interface {
	Get(ctx context.Context, sessionID, text string) (string, bool)
	Put(ctx context.Context, sessionID, text, message string)
}

type RedisResponseCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisResponseCache(rdb *redis.Client, ttl time.Duration) *RedisResponseCache {
	return &RedisResponseCache{rdb: rdb, ttl: ttl}
}

func responseKey(sessionID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "ussd:resp:" + sessionID + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisResponseCache) Get(ctx context.Context, sessionID, text string) (string, bool) {
	if sessionID == "" {
		return "", false
	}

	message, err := c.rdb.Get(ctx, responseKey(sessionID, text)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[USSD] ResponseCache - get failed: %v", err)
		}
		return "", false
	}
	return message, true
}

func (c *RedisResponseCache) Put(ctx context.Context, sessionID, text, message string) {
	if sessionID == "" {
		return
	}

	if err := c.rdb.Set(ctx, responseKey(sessionID, text), message, c.ttl).Err(); err != nil {
		log.Printf("[USSD] ResponseCache - put failed: %v", err)
	}
}
