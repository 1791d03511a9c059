package services

import (
	"fmt"
	"strings"

	"github.com/dexa-wallet/backend/internal/models"
)

// FormatHistory renders ledger records one per line, in the order given.
func FormatHistory(txs []models.Transaction, nativeSymbol string) string {
	lines := make([]string, 0, len(txs))
	for _, tx := range txs {
		lines = append(lines, FormatTransaction(tx, nativeSymbol))
	}
	return strings.Join(lines, "\n")
}

func FormatTransaction(tx models.Transaction, nativeSymbol string) string {
	switch tx.Type {
	case models.TxTypeNativeSend:
		return fmt.Sprintf("%s -> %s %s", nativeSymbol, tx.To, tx.Amount)
	case models.TxTypeFund:
		return fmt.Sprintf("FUND +%s %s", tx.Amount, nativeSymbol)
	case models.TxTypeTokenTransfer:
		symbol := "TOKEN"
		if tx.TokenSymbol != nil && *tx.TokenSymbol != "" {
			symbol = *tx.TokenSymbol
		}
		return fmt.Sprintf("%s -> %s %s", symbol, tx.To, tx.Amount)
	case models.TxTypeTokenAssociate:
		token := ""
		if tx.TokenAddress != nil {
			token = *tx.TokenAddress
		}
		if len(token) > 10 {
			token = token[:10]
		}
		return fmt.Sprintf("ASSOC %s...", token)
	}
	return string(tx.Type)
}
