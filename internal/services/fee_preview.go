package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/notification"
	"github.com/shopspring/decimal"
)

const ledgerWriteTimeout = 10 * time.Second

var amountPattern = regexp.MustCompile(`^\d*\.?\d*$`)

// ValidAmount reports whether amount is a plain positive decimal string.
func ValidAmount(amount string) bool {
	if amount == "" || amount == "." || !amountPattern.MatchString(amount) {
		return false
	}
	d, err := decimal.NewFromString(amount)
	return err == nil && d.IsPositive()
}

// ParseAmount validates a positive decimal string and converts it to base
// units. Amounts that truncate to zero at the given precision are rejected.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if !ValidAmount(amount) {
		return nil, chain.ErrInvalidAmount
	}

	raw, err := chain.ToBaseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	if raw.Sign() <= 0 {
		return nil, chain.ErrInvalidAmount
	}
	return raw, nil
}

// Transfer is a value-moving call prepared for preview and, after an
// explicit confirmation, submission.
type Transfer struct {
	Type        models.TransactionType
	PhoneNumber string
	PrivateKey  string
	From        string
	// To is the recipient; for associations it is unused.
	To           string
	TokenAddress string
	TokenSymbol  string
	Amount       string
	AmountRaw    *big.Int
}

func (t *Transfer) intent() (chain.TxIntent, error) {
	switch t.Type {
	case models.TxTypeNativeSend, models.TxTypeFund:
		return chain.TxIntent{PrivateKey: t.PrivateKey, To: t.To, Value: t.AmountRaw}, nil
	case models.TxTypeTokenTransfer:
		data, err := chain.EncodeTransfer(t.To, t.AmountRaw)
		if err != nil {
			return chain.TxIntent{}, err
		}
		return chain.TxIntent{PrivateKey: t.PrivateKey, To: t.TokenAddress, Data: data}, nil
	case models.TxTypeTokenAssociate:
		data, err := chain.EncodeAssociate(t.From, t.TokenAddress)
		if err != nil {
			return chain.TxIntent{}, err
		}
		return chain.TxIntent{PrivateKey: t.PrivateKey, To: chain.HTSPrecompile, Data: data}, nil
	}
	return chain.TxIntent{}, fmt.Errorf("unsupported transfer type %q", t.Type)
}

// Transactor estimates and executes transfers and writes the ledger record
// for every accepted submission.
type Transactor struct {
	chain        ChainClient
	store        Store
	notifier     Notifier
	audit        *hsm.AuditLogger
	nativeSymbol string
}

func NewTransactor(chainClient ChainClient, store Store, notifier Notifier, audit *hsm.AuditLogger, nativeSymbol string) *Transactor {
	if audit == nil {
		audit = hsm.NewAuditLogger()
	}
	if nativeSymbol == "" {
		nativeSymbol = "HBAR"
	}
	return &Transactor{
		chain:        chainClient,
		store:        store,
		notifier:     notifier,
		audit:        audit,
		nativeSymbol: nativeSymbol,
	}
}

func (t *Transactor) NativeSymbol() string {
	return t.nativeSymbol
}

// EstimateFee prices the exact call and returns it in native display units.
// The figure is informational only and never stored.
func (t *Transactor) EstimateFee(ctx context.Context, transfer *Transfer) (string, error) {
	intent, err := transfer.intent()
	if err != nil {
		return "", err
	}

	fee, err := t.chain.EstimateFee(ctx, intent)
	if err != nil {
		return "", err
	}
	return chain.ToHuman(fee, chain.NativeDecimals), nil
}

// Execute submits the transfer once and appends the ledger record. The
// returned error is a *chain.RevertError when the node rejected the call.
func (t *Transactor) Execute(ctx context.Context, transfer *Transfer) (*chain.SubmitResult, error) {
	var result *chain.SubmitResult
	var err error

	if transfer.Type == models.TxTypeTokenAssociate {
		result, err = t.chain.AssociateToken(ctx, transfer.PrivateKey, transfer.TokenAddress)
	} else {
		intent, ierr := transfer.intent()
		if ierr != nil {
			return nil, ierr
		}
		result, err = t.chain.Submit(ctx, intent)
	}
	if err != nil {
		t.audit.LogError(string(transfer.Type), transfer.PhoneNumber, err)
		return nil, err
	}

	record := &models.Transaction{
		PhoneNumber:  transfer.PhoneNumber,
		Type:         transfer.Type,
		From:         transfer.From,
		To:           transfer.To,
		TokenAddress: models.StringPtr(transfer.TokenAddress),
		TokenSymbol:  models.StringPtr(transfer.TokenSymbol),
		Amount:       transfer.Amount,
		TxHash:       models.StringPtr(result.Hash),
		Status:       ledgerStatus(result.Status),
		ChainID:      t.chain.ChainID(),
	}
	if transfer.AmountRaw != nil {
		record.AmountRaw = transfer.AmountRaw.String()
	}
	if transfer.Type == models.TxTypeTokenAssociate {
		record.To = transfer.TokenAddress
	}

	// The chain accepted the call, so the record is written even when the
	// request was cancelled meanwhile. Failures are logged, never returned.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := t.store.AppendTransaction(writeCtx, record); err != nil {
		log.Printf("[WALLET] Execute - ledger write failed for %s: %v", result.Hash, err)
	}

	t.audit.LogTransfer(result.Hash, transfer.PhoneNumber, record.To, transfer.Amount, string(record.Status))
	return result, nil
}

// Notify forwards an out-of-band SMS when a notifier is configured.
func (t *Transactor) Notify(phoneNumber, body string) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(notification.Message{Channel: notification.ChannelSMS, To: phoneNumber, Body: body})
}

// NotifySecret sends a body that must never reach the logs.
func (t *Transactor) NotifySecret(phoneNumber, body string) {
	if t.notifier == nil {
		return
	}
	t.notifier.Notify(notification.Message{Channel: notification.ChannelSMS, To: phoneNumber, Body: body, Sensitive: true})
}

// FailureMessage shows a node revert reason verbatim and hides every other
// collaborator error.
func FailureMessage(err error) string {
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		return "Failed: " + revert.Reason
	}
	return "Failed: transaction could not be submitted. Please try again later."
}

func ledgerStatus(status chain.ReceiptStatus) models.TransactionStatus {
	switch status {
	case chain.ReceiptSuccess:
		return models.TxStatusSuccess
	case chain.ReceiptFailed:
		return models.TxStatusFailed
	}
	return models.TxStatusPending
}
