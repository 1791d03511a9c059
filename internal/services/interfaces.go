package services

import (
	"context"
	"math/big"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/notification"
)

// ChainClient is the subset of chain.EVMClient the wallet flows depend on.
type ChainClient interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	EstimateFee(ctx context.Context, intent chain.TxIntent) (*big.Int, error)
	Submit(ctx context.Context, intent chain.TxIntent) (*chain.SubmitResult, error)
	ReadTokenMetadata(ctx context.Context, tokenAddress string) (*chain.TokenMetadata, error)
	AssociateToken(ctx context.Context, privateKey, tokenAddress string) (*chain.SubmitResult, error)
	ChainID() int64
}

// Store persists wallet users and the append-only ledger.
type Store interface {
	FindUser(ctx context.Context, phoneNumber string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, phoneNumber string) error
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	ListRecentTransactions(ctx context.Context, phoneNumber string, limit int) ([]models.Transaction, error)
}

// Notifier sends out-of-band texts without blocking the caller.
type Notifier interface {
	Notify(message notification.Message)
}
