package models

import (
	"time"
)

// TransactionType identifies the kind of money movement in the ledger.
type TransactionType string

const (
	TxTypeFund           TransactionType = "fund"
	TxTypeNativeSend     TransactionType = "native-send"
	TxTypeTokenAssociate TransactionType = "token-associate"
	TxTypeTokenTransfer  TransactionType = "token-transfer"
)

// TransactionStatus reflects the receipt outcome observed at submission time.
type TransactionStatus string

const (
	TxStatusPending TransactionStatus = "pending"
	TxStatusSuccess TransactionStatus = "success"
	TxStatusFailed  TransactionStatus = "failed"
)

// Transaction is an append-only ledger entry. Rows are written once, after
// the chain accepted the submission, and never updated.
type Transaction struct {
	ID           int64             `json:"id" db:"id"`
	PhoneNumber  string            `json:"phoneNumber" db:"phone_number"`
	Type         TransactionType   `json:"type" db:"type"`
	From         string            `json:"from" db:"from_address"`
	To           string            `json:"to,omitempty" db:"to_address"`
	TokenAddress *string           `json:"tokenAddress,omitempty" db:"token_address"`
	TokenSymbol  *string           `json:"tokenSymbol,omitempty" db:"token_symbol"`
	Amount       string            `json:"amount,omitempty" db:"amount"`         // human units
	AmountRaw    string            `json:"amountRaw,omitempty" db:"amount_raw"` // base units
	TxHash       *string           `json:"txHash,omitempty" db:"tx_hash"`
	Status       TransactionStatus `json:"status" db:"status"`
	ChainID      int64             `json:"chainId" db:"chain_id"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
}

// StringPtr returns nil for empty strings so nullable columns stay NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
