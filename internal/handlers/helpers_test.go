package handlers

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/repository"
	"github.com/dexa-wallet/backend/internal/services"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPhone     = "+254700000001"
	testPIN       = "1234"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChain) EstimateFee(ctx context.Context, intent chain.TxIntent) (*big.Int, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *mockChain) Submit(ctx context.Context, intent chain.TxIntent) (*chain.SubmitResult, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.SubmitResult), args.Error(1)
}

func (m *mockChain) ReadTokenMetadata(ctx context.Context, tokenAddress string) (*chain.TokenMetadata, error) {
	args := m.Called(ctx, tokenAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TokenMetadata), args.Error(1)
}

func (m *mockChain) AssociateToken(ctx context.Context, privateKey, tokenAddress string) (*chain.SubmitResult, error) {
	args := m.Called(ctx, privateKey, tokenAddress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.SubmitResult), args.Error(1)
}

func (m *mockChain) ChainID() int64 { return 296 }

type fakeStore struct {
	mu    sync.Mutex
	users map[string]models.User
	txs   []models.Transaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]models.User)}
}

func (s *fakeStore) FindUser(_ context.Context, phoneNumber string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[phoneNumber]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (s *fakeStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.PhoneNumber]; ok {
		return repository.ErrUserExists
	}
	s.users[user.PhoneNumber] = *user
	return nil
}

func (s *fakeStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.PhoneNumber] = *user
	return nil
}

func (s *fakeStore) DeleteUser(_ context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, phoneNumber)
	return nil
}

func (s *fakeStore) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = int64(len(s.txs) + 1)
	s.txs = append(s.txs, *tx)
	return nil
}

func (s *fakeStore) ListRecentTransactions(_ context.Context, phoneNumber string, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Transaction{}
	for i := len(s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txs[i].PhoneNumber == phoneNumber {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

type testEnv struct {
	store   *fakeStore
	chain   *mockChain
	hsm     *hsm.HSMServer
	ussd    *services.USSDService
	wallet  *services.WalletService
	message *services.MessageService
	qr      *services.QRService
}

func newTestEnv(t *testing.T, funderKey string) *testEnv {
	t.Helper()

	h, err := hsm.InitHSM(hsm.Config{MasterKey: "test-master-key", Salt: []byte("0123456789abcdef")})
	require.NoError(t, err)

	cfg := &config.USSDConfig{
		PinMaxRetries:     3,
		PinLockDuration:   5 * time.Minute,
		HistoryLimit:      5,
		SessionLockWait:   100 * time.Millisecond,
		ConfirmTimeout:    2 * time.Minute,
		DefaultFundAmount: "5",
	}

	env := &testEnv{store: newFakeStore(), chain: new(mockChain), hsm: h}
	audit := hsm.NewAuditLogger()
	pins := services.NewPinPolicy(h, env.store, audit, cfg.PinMaxRetries, cfg.PinLockDuration)
	transactor := services.NewTransactor(env.chain, env.store, nil, audit, "HBAR")

	env.ussd = services.NewUSSDService(services.USSDDeps{
		Store:      env.store,
		Chain:      env.chain,
		HSM:        h,
		Pins:       pins,
		Transactor: transactor,
		Audit:      audit,
		Locker:     services.NewMemoryLocker(cfg.SessionLockWait),
		Config:     cfg,
	})
	env.wallet = services.NewWalletService(env.store, env.chain, h, pins, transactor, funderKey, cfg)
	env.message = services.NewMessageService(env.wallet, services.NewMemoryPendingStore(), services.NewMemoryLocker(cfg.SessionLockWait), cfg.ConfirmTimeout, cfg.HistoryLimit)
	env.qr = services.NewQRService(env.wallet, nil)
	return env
}

func (e *testEnv) seedUser(t *testing.T, phone string) string {
	t.Helper()

	privateKey, address, err := chain.NewWallet()
	require.NoError(t, err)
	encrypted, err := e.hsm.EncryptPrivateKey(privateKey)
	require.NoError(t, err)
	pinHash, err := e.hsm.HashPIN(testPIN, nil)
	require.NoError(t, err)

	require.NoError(t, e.store.CreateUser(context.Background(), &models.User{
		PhoneNumber: phone,
		PublicKey:   address,
		PrivateKey:  encrypted,
		PIN:         pinHash,
	}))
	return address
}
