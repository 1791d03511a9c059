package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PendingSend is a previewed chat payment awaiting "YES <PIN>". It never
// holds key material.
type PendingSend struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
	// Recipient is the phone number the sender typed, when To was resolved
	// from one.
	Recipient string    `json:"recipient,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Label is how the recipient is shown back to the sender.
func (p *PendingSend) Label() string {
	if p.Recipient == "" {
		return p.To
	}
	return fmt.Sprintf("%s (%s)", p.Recipient, p.To)
}

// PendingStore parks one confirmation per phone number until it is taken
// or expires.
type PendingStore interface {
	Save(ctx context.Context, phoneNumber string, pending *PendingSend, ttl time.Duration) error
	// Take returns and removes the confirmation, or nil when none is live.
	Take(ctx context.Context, phoneNumber string) (*PendingSend, error)
}

const pendingKeyPrefix = "chat:pending:"

type RedisPendingStore struct {
	rdb *redis.Client
}

func NewRedisPendingStore(rdb *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{rdb: rdb}
}

func (s *RedisPendingStore) Save(ctx context.Context, phoneNumber string, pending *PendingSend, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, pendingKeyPrefix+phoneNumber, data, ttl).Err()
}

func (s *RedisPendingStore) Take(ctx context.Context, phoneNumber string) (*PendingSend, error) {
	data, err := s.rdb.GetDel(ctx, pendingKeyPrefix+phoneNumber).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take pending: %w", err)
	}

	var pending PendingSend
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("decode pending: %w", err)
	}
	return &pending, nil
}

// MemoryPendingStore is used when Redis is unavailable.
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]memoryPending
	now     func() time.Time
}

type memoryPending struct {
	pending   PendingSend
	expiresAt time.Time
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{entries: make(map[string]memoryPending), now: time.Now}
}

func (s *MemoryPendingStore) Save(_ context.Context, phoneNumber string, pending *PendingSend, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[phoneNumber] = memoryPending{pending: *pending, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryPendingStore) Take(_ context.Context, phoneNumber string) (*PendingSend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[phoneNumber]
	if !ok {
		return nil, nil
	}
	delete(s.entries, phoneNumber)

	if !s.now().Before(entry.expiresAt) {
		return nil, nil
	}
	pending := entry.pending
	return &pending, nil
}
