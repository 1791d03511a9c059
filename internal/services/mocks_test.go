package services

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/notification"
	"github.com/dexa-wallet/backend/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChain struct {
	mock.Mock
}

func (m *MockChain) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChain) EstimateFee(ctx context.Context, intent chain.TxIntent) (*big.Int, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChain) Submit(ctx context.Context, intent chain.TxIntent) (*chain.SubmitResult, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.SubmitResult), args.Error(1)
}

func (m *MockChain) ReadTokenMetadata(ctx context.Context, tokenAddress string) (*chain.TokenMetadata, error) {
	args := m.Called(ctx, tokenAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TokenMetadata), args.Error(1)
}

func (m *MockChain) AssociateToken(ctx context.Context, privateKey, tokenAddress string) (*chain.SubmitResult, error) {
	args := m.Called(ctx, privateKey, tokenAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.SubmitResult), args.Error(1)
}

func (m *MockChain) ChainID() int64 {
	return 296
}

// memoryStore keeps users and the ledger in maps.
type memoryStore struct {
	mu      sync.Mutex
	users   map[string]models.User
	txs     []models.Transaction
	nextID  int64
	findErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]models.User)}
}

func (s *memoryStore) FindUser(_ context.Context, phoneNumber string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	user, ok := s.users[phoneNumber]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (s *memoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.PhoneNumber]; ok {
		return repository.ErrUserExists
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.PhoneNumber] = *user
	return nil
}

func (s *memoryStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.PhoneNumber]; !ok {
		return repository.ErrUserNotFound
	}
	s.users[user.PhoneNumber] = *user
	return nil
}

func (s *memoryStore) DeleteUser(_ context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, phoneNumber)
	return nil
}

func (s *memoryStore) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	tx.ID = s.nextID
	tx.CreatedAt = time.Now()
	s.txs = append(s.txs, *tx)
	return nil
}

func (s *memoryStore) ListRecentTransactions(_ context.Context, phoneNumber string, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.txs {
		if tx.PhoneNumber == phoneNumber {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) user(phoneNumber string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[phoneNumber]
}

func (s *memoryStore) ledger() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.txs...)
}

// recordingNotifier captures messages synchronously.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Notify(message notification.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) sent() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.messages...)
}

const (
	testPhone     = "+254700000001"
	testPIN       = "1234"
	testRecipient = "0x1111111111111111111111111111111111111111"
	testToken     = "0x2222222222222222222222222222222222222222"
	testTxHash    = "0xabc123"
)

// walletFixture wires the services against in-memory collaborators and a
// real HSM keyed with a fixed salt.
type walletFixture struct {
	store      *memoryStore
	chain      *MockChain
	hsm        *hsm.HSMServer
	notifier   *recordingNotifier
	pins       *PinPolicy
	transactor *Transactor
	config     *config.USSDConfig
	now        time.Time
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()

	h, err := hsm.InitHSM(hsm.Config{MasterKey: "test-master-key", Salt: []byte("0123456789abcdef")})
	require.NoError(t, err)

	cfg := &config.USSDConfig{
		PinMaxRetries:     3,
		PinLockDuration:   5 * time.Minute,
		HistoryLimit:      5,
		SessionLockTTL:    30 * time.Second,
		SessionLockWait:   200 * time.Millisecond,
		ResponseCacheTTL:  3 * time.Minute,
		ConfirmTimeout:    2 * time.Minute,
		DefaultFundAmount: "5",
	}

	f := &walletFixture{
		store:    newMemoryStore(),
		chain:    new(MockChain),
		hsm:      h,
		notifier: &recordingNotifier{},
		config:   cfg,
		now:      time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}

	audit := hsm.NewAuditLogger()
	f.pins = NewPinPolicy(h, f.store, audit, cfg.PinMaxRetries, cfg.PinLockDuration)
	f.pins.now = func() time.Time { return f.now }
	f.transactor = NewTransactor(f.chain, f.store, f.notifier, audit, "HBAR")
	return f
}

// seedUser creates an account with testPIN and returns its address.
func (f *walletFixture) seedUser(t *testing.T, phone string) string {
	t.Helper()

	privateKey, address, err := chain.NewWallet()
	require.NoError(t, err)
	encrypted, err := f.hsm.EncryptPrivateKey(privateKey)
	require.NoError(t, err)
	pinHash, err := f.hsm.HashPIN(testPIN, nil)
	require.NoError(t, err)

	require.NoError(t, f.store.CreateUser(context.Background(), &models.User{
		PhoneNumber: phone,
		PublicKey:   address,
		PrivateKey:  encrypted,
		PIN:         pinHash,
	}))
	return address
}

func (f *walletFixture) ussd(locker SessionLocker, cache ResponseCache) *USSDService {
	return NewUSSDService(USSDDeps{
		Store:      f.store,
		Chain:      f.chain,
		HSM:        f.hsm,
		Pins:       f.pins,
		Transactor: f.transactor,
		Locker:     locker,
		Cache:      cache,
		Config:     f.config,
	})
}

func (f *walletFixture) wallet(funderKey string) *WalletService {
	return NewWalletService(f.store, f.chain, f.hsm, f.pins, f.transactor, funderKey, f.config)
}
