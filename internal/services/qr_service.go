package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

const qrKeyPrefix = "qr:"

// QRService renders deposit-address QR codes. PNGs are cached in Redis when
// a client is configured.
type QRService struct {
	wallet *WalletService
	redis  *redis.Client
	size   int
	ttl    time.Duration
}

func NewQRService(wallet *WalletService, redis *redis.Client) *QRService {
	return &QRService{
		wallet: wallet,
		redis:  redis,
		size:   256,
		ttl:    24 * time.Hour,
	}
}

// PaymentURI is the ERC-681 style URI wallets understand when scanning.
func PaymentURI(address string, chainID int64) string {
	return fmt.Sprintf("ethereum:%s@%d", address, chainID)
}

// AddressQR returns a PNG encoding the wallet's payment URI.
func (s *QRService) AddressQR(ctx context.Context, phoneNumber string) ([]byte, error) {
	user, err := s.wallet.User(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	key := qrKeyPrefix + user.PublicKey
	if s.redis != nil {
		if png, err := s.redis.Get(ctx, key).Bytes(); err == nil {
			return png, nil
		}
	}

	png, err := qrcode.Encode(PaymentURI(user.PublicKey, s.wallet.ChainID()), qrcode.Medium, s.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, png, s.ttl).Err(); err != nil {
			log.Printf("[WALLET] AddressQR - cache write failed: %v", err)
		}
	}
	return png, nil
}
