package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/repository"
)

var (
	ErrFundingDisabled = errors.New("funding is not configured")
	ErrInvalidPIN      = errors.New("invalid PIN")
	ErrInvalidAddress  = errors.New("invalid address")

	// ErrUnknownRecipient means a phone number target has no wallet.
	ErrUnknownRecipient = errors.New("recipient has no wallet")
)

// PinLockedError is returned while the account's lock window is open.
type PinLockedError struct {
	Remaining time.Duration
}

func (e *PinLockedError) Error() string {
	return LockedMessage(e.Remaining)
}

// Balance is the native balance of a wallet.
type Balance struct {
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	ChainID     int64  `json:"chainId"`
	Token       string `json:"token"`
	Balance     string `json:"balance"`
	BalanceRaw  string `json:"balanceRaw"`
}

// WalletService implements the operator API and the chat commands on top of
// the same store, PIN policy and transactor as the USSD flows.
type WalletService struct {
	store      Store
	chain      ChainClient
	hsm        hsm.HSMInterface
	pins       *PinPolicy
	transactor *Transactor
	funderKey  string
	config     *config.USSDConfig
}

func NewWalletService(store Store, chainClient ChainClient, h hsm.HSMInterface, pins *PinPolicy, transactor *Transactor, funderKey string, cfg *config.USSDConfig) *WalletService {
	if cfg == nil {
		cfg = config.LoadUSSDConfig()
	}
	return &WalletService{
		store:      store,
		chain:      chainClient,
		hsm:        h,
		pins:       pins,
		transactor: transactor,
		funderKey:  funderKey,
		config:     cfg,
	}
}

func (s *WalletService) NativeSymbol() string {
	return s.transactor.NativeSymbol()
}

func (s *WalletService) ChainID() int64 {
	return s.chain.ChainID()
}

func (s *WalletService) User(ctx context.Context, phoneNumber string) (*models.User, error) {
	return s.store.FindUser(ctx, phoneNumber)
}

func (s *WalletService) Balance(ctx context.Context, phoneNumber string) (*Balance, error) {
	user, err := s.store.FindUser(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	raw, err := s.chain.GetBalance(ctx, user.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	return &Balance{
		PhoneNumber: phoneNumber,
		Address:     user.PublicKey,
		ChainID:     s.chain.ChainID(),
		Token:       s.NativeSymbol(),
		Balance:     chain.ToHuman(raw, chain.NativeDecimals),
		BalanceRaw:  raw.String(),
	}, nil
}

// Transactions lists the newest ledger records for an existing account.
func (s *WalletService) Transactions(ctx context.Context, phoneNumber string, limit int) ([]models.Transaction, error) {
	if _, err := s.store.FindUser(ctx, phoneNumber); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.config.HistoryLimit
	}
	return s.store.ListRecentTransactions(ctx, phoneNumber, limit)
}

// Fund sends native currency from the configured funder key to the user's
// wallet. An empty amount uses the configured default.
func (s *WalletService) Fund(ctx context.Context, phoneNumber, amount string) (*chain.SubmitResult, error) {
	if s.funderKey == "" {
		return nil, ErrFundingDisabled
	}
	if amount == "" {
		amount = s.config.DefaultFundAmount
	}

	raw, err := ParseAmount(amount, chain.NativeDecimals)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUser(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	funder, err := chain.AddressFromKey(s.funderKey)
	if err != nil {
		return nil, fmt.Errorf("funder key: %w", err)
	}

	result, err := s.transactor.Execute(ctx, &Transfer{
		Type:        models.TxTypeFund,
		PhoneNumber: phoneNumber,
		PrivateKey:  s.funderKey,
		From:        funder,
		To:          user.PublicKey,
		Amount:      amount,
		AmountRaw:   raw,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WALLET] Fund - %s %s sent to %s: %s", amount, s.NativeSymbol(), phoneNumber, result.Hash)
	s.transactor.Notify(phoneNumber, fmt.Sprintf("Wallet funded\nAmount: %s %s\nTx: %s", amount, s.NativeSymbol(), result.Hash))
	return result, nil
}

// PrepareSend verifies the PIN and builds a native transfer without
// submitting it.
func (s *WalletService) PrepareSend(ctx context.Context, phoneNumber, pin, to, amount string) (*Transfer, error) {
	if !chain.IsAddress(to) {
		return nil, ErrInvalidAddress
	}

	raw, err := ParseAmount(amount, chain.NativeDecimals)
	if err != nil {
		return nil, err
	}

	user, err := s.store.FindUser(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, user, pin); err != nil {
		return nil, err
	}

	privateKey, err := s.hsm.DecryptPrivateKey(user.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}

	return &Transfer{
		Type:        models.TxTypeNativeSend,
		PhoneNumber: phoneNumber,
		PrivateKey:  privateKey,
		From:        user.PublicKey,
		To:          to,
		Amount:      amount,
		AmountRaw:   raw,
	}, nil
}

// Send verifies the PIN and submits a native transfer.
func (s *WalletService) Send(ctx context.Context, phoneNumber, pin, to, amount string) (*chain.SubmitResult, error) {
	transfer, err := s.PrepareSend(ctx, phoneNumber, pin, to, amount)
	if err != nil {
		return nil, err
	}

	result, err := s.transactor.Execute(ctx, transfer)
	if err != nil {
		return nil, err
	}

	symbol := s.NativeSymbol()
	s.transactor.Notify(phoneNumber, fmt.Sprintf("%s Transfer\nTo: %s\nAmount: %s %s\nTx: %s", symbol, to, amount, symbol, result.Hash))
	return result, nil
}

// ResolveRecipient turns a chat target into an address. A target that is
// not an address is looked up as a registered phone number.
func (s *WalletService) ResolveRecipient(ctx context.Context, target string) (string, error) {
	if chain.IsAddress(target) {
		return target, nil
	}
	if !phonePattern.MatchString(target) {
		return "", ErrInvalidAddress
	}
	if !strings.HasPrefix(target, "+") {
		target = "+" + target
	}

	user, err := s.store.FindUser(ctx, target)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", ErrUnknownRecipient
	}
	if err != nil {
		return "", err
	}
	return user.PublicKey, nil
}

// ExportKey verifies the PIN and sends the decrypted private key to the
// owner by SMS. The key is never returned to the caller.
func (s *WalletService) ExportKey(ctx context.Context, phoneNumber, pin string) error {
	user, err := s.store.FindUser(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, user, pin); err != nil {
		return err
	}

	privateKey, err := s.hsm.DecryptPrivateKey(user.PrivateKey)
	if err != nil {
		return fmt.Errorf("decrypt key: %w", err)
	}

	s.transactor.NotifySecret(phoneNumber, fmt.Sprintf("Your DeXa private key: %s\nNever share it with anyone.", privateKey))
	s.transactor.audit.LogSecurity(phoneNumber, "KEY_EXPORTED", "private key sent via SMS from chat")
	return nil
}

func (s *WalletService) authorize(ctx context.Context, user *models.User, pin string) error {
	check, err := s.pins.Verify(ctx, user, pin)
	if err != nil {
		return err
	}
	if !check.OK {
		if check.Locked {
			return &PinLockedError{Remaining: check.Remaining}
		}
		return ErrInvalidPIN
	}
	return nil
}

// EstimateSend previews the fee of a native transfer from the user's wallet.
func (s *WalletService) EstimateSend(ctx context.Context, phoneNumber, to, amount string) (string, error) {
	if !chain.IsAddress(to) {
		return "", ErrInvalidAddress
	}

	raw, err := ParseAmount(amount, chain.NativeDecimals)
	if err != nil {
		return "", err
	}

	user, err := s.store.FindUser(ctx, phoneNumber)
	if err != nil {
		return "", err
	}

	privateKey, err := s.hsm.DecryptPrivateKey(user.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("decrypt key: %w", err)
	}

	return s.transactor.EstimateFee(ctx, &Transfer{
		Type:        models.TxTypeNativeSend,
		PhoneNumber: phoneNumber,
		PrivateKey:  privateKey,
		From:        user.PublicKey,
		To:          to,
		Amount:      amount,
		AmountRaw:   raw,
	})
}
