package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/hsm"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/repository"
)

const (
	msgNoAccount     = "Please create an account first"
	msgEnterPIN      = "Enter your PIN:"
	msgInvalidPIN    = "Invalid PIN"
	msgTokenPrompt   = "Enter token contract address (0x...):"
	msgRecipient     = "Enter recipient EVM address (0x...):"
	msgInvalidToken  = "Invalid token address"
	msgInvalidAmount = "Invalid amount"
	msgCancelled     = "Cancelled"
	msgFeeFailed     = "Failed to estimate fee"
)

// authorize loads the account and applies the PIN gate. At depth 1 it
// answers with prompt; from depth 2 on, token[1] is verified on every
// request. ok is false when resp ends this request.
func (s *USSDService) authorize(ctx context.Context, phone string, tokens []string, prompt, missing string) (user *models.User, resp USSDResponse, ok bool) {
	user, err := s.store.FindUser(ctx, phone)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, end(missing), false
	}
	if err != nil {
		log.Printf("[USSD] authorize - lookup %s failed: %v", phone, err)
		return nil, end(msgGenericError), false
	}

	if remaining, locked := s.pins.LockRemaining(user); locked {
		return nil, end(LockedMessage(remaining)), false
	}

	if len(tokens) == 1 {
		return nil, con(prompt), false
	}

	check, err := s.pins.Verify(ctx, user, tokenAt(tokens, 1))
	if err != nil {
		log.Printf("[USSD] authorize - PIN check for %s failed: %v", phone, err)
		return nil, end(msgGenericError), false
	}
	if !check.OK {
		if check.Locked {
			return nil, end(msgInvalidPIN + ". " + LockedMessage(check.Remaining)), false
		}
		return nil, end(msgInvalidPIN), false
	}
	return user, USSDResponse{}, true
}

func (s *USSDService) createAccount(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 2 {
		return end(msgInvalidOption)
	}

	_, err := s.store.FindUser(ctx, phone)
	if err == nil {
		return end("Account already exists!")
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		log.Printf("[USSD] createAccount - lookup %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	if len(tokens) == 1 {
		return con("Enter a PIN for your account (4 digits):")
	}

	pin := tokenAt(tokens, 1)
	if !hsm.ValidPIN(pin) {
		return end("Invalid PIN. Please try again with 4 digits.")
	}

	privateKey, address, err := chain.NewWallet()
	if err != nil {
		log.Printf("[USSD] createAccount - key generation failed: %v", err)
		return end(msgGenericError)
	}

	encrypted, err := s.hsm.EncryptPrivateKey(privateKey)
	if err != nil {
		log.Printf("[USSD] createAccount - key encryption failed: %v", err)
		return end(msgGenericError)
	}

	pinHash, err := s.hsm.HashPIN(pin, nil)
	if err != nil {
		log.Printf("[USSD] createAccount - PIN hashing failed: %v", err)
		return end(msgGenericError)
	}

	user := &models.User{
		PhoneNumber: phone,
		PublicKey:   address,
		PrivateKey:  encrypted,
		PIN:         pinHash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return end("Account already exists!")
		}
		log.Printf("[USSD] createAccount - insert %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	log.Printf("[USSD] createAccount - wallet %s created for %s", address, phone)
	s.audit.LogOperation(address, phone, "ACCOUNT_CREATED", "custodial wallet generated")
	s.transactor.Notify(phone, fmt.Sprintf("Welcome to DeXa\nYour wallet address: %s", address))

	return end(fmt.Sprintf("Account created successfully! Fund your wallet with %s", s.transactor.NativeSymbol()))
}

func (s *USSDService) viewPrivateKey(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 2 {
		return end(msgInvalidOption)
	}

	user, resp, ok := s.authorize(ctx, phone, tokens, msgEnterPIN, msgNoAccount)
	if !ok {
		return resp
	}

	privateKey, err := s.hsm.DecryptPrivateKey(user.PrivateKey)
	if err != nil {
		log.Printf("[USSD] viewPrivateKey - decrypt for %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	s.transactor.NotifySecret(phone, fmt.Sprintf("Your DeXa private key: %s\nNever share it with anyone.", privateKey))
	s.audit.LogSecurity(phone, "KEY_EXPORTED", "private key sent via SMS")

	return end("Your private key has been sent via SMS")
}

func (s *USSDService) setPIN(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 3 {
		return end(msgInvalidOption)
	}

	user, resp, ok := s.authorize(ctx, phone, tokens, "Enter your current PIN:", msgNoAccount)
	if !ok {
		return resp
	}

	if len(tokens) == 2 {
		return con("Enter new PIN (4 digits):")
	}

	newPIN := tokenAt(tokens, 2)
	if !hsm.ValidPIN(newPIN) {
		return end("Invalid PIN format. Use 4 digits.")
	}

	pinHash, err := s.hsm.HashPIN(newPIN, nil)
	if err != nil {
		log.Printf("[USSD] setPIN - hashing failed: %v", err)
		return end(msgGenericError)
	}

	user.PIN = pinHash
	if err := s.store.SaveUser(ctx, user); err != nil {
		log.Printf("[USSD] setPIN - save %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	s.audit.LogSecurity(phone, "PIN_CHANGED", "PIN updated")
	return end("PIN updated successfully!")
}

func (s *USSDService) deleteAccount(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 2 {
		return end(msgInvalidOption)
	}

	_, resp, ok := s.authorize(ctx, phone, tokens, "Enter PIN to confirm account deletion:", "No account to delete")
	if !ok {
		return resp
	}

	if err := s.store.DeleteUser(ctx, phone); err != nil {
		log.Printf("[USSD] deleteAccount - delete %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	s.audit.LogOperation("", phone, "ACCOUNT_DELETED", "user record removed, ledger kept")
	return end("Account deleted successfully")
}

func (s *USSDService) checkBalance(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 1 {
		return end(msgInvalidOption)
	}

	user, err := s.store.FindUser(ctx, phone)
	if errors.Is(err, repository.ErrUserNotFound) {
		return end(msgNoAccount)
	}
	if err != nil {
		log.Printf("[USSD] checkBalance - lookup %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	balance, err := s.chain.GetBalance(ctx, user.PublicKey)
	if err != nil {
		log.Printf("[USSD] checkBalance - balance for %s failed: %v", user.PublicKey, err)
		return end("Failed to fetch balance. Please try again later.")
	}

	symbol := s.transactor.NativeSymbol()
	human := chain.ToHuman(balance, chain.NativeDecimals)
	s.transactor.Notify(phone, fmt.Sprintf("%s Balance\nAddress: %s\nBalance: %s %s", symbol, user.PublicKey, human, symbol))

	return end(fmt.Sprintf("Address: %s\nBalance: %s %s", user.PublicKey, human, symbol))
}

func (s *USSDService) history(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 1 {
		return end(msgInvalidOption)
	}

	if _, err := s.store.FindUser(ctx, phone); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return end(msgNoAccount)
		}
		log.Printf("[USSD] history - lookup %s failed: %v", phone, err)
		return end(msgGenericError)
	}

	txs, err := s.store.ListRecentTransactions(ctx, phone, s.config.HistoryLimit)
	if err != nil {
		log.Printf("[USSD] history - list for %s failed: %v", phone, err)
		return end(msgGenericError)
	}
	if len(txs) == 0 {
		return end("No transactions yet")
	}

	return end("Last Tx:\n" + FormatHistory(txs, s.transactor.NativeSymbol()))
}

func (s *USSDService) sendNative(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 5 {
		return end(msgInvalidOption)
	}

	user, resp, ok := s.authorize(ctx, phone, tokens, msgEnterPIN, msgNoAccount)
	if !ok {
		return resp
	}

	symbol := s.transactor.NativeSymbol()
	if len(tokens) == 2 {
		return con(msgRecipient)
	}

	to := tokenAt(tokens, 2)
	if !chain.IsAddress(to) {
		return end("Invalid address format. Must be 0x + 40 hex chars.")
	}
	if len(tokens) == 3 {
		return con(fmt.Sprintf("Enter amount in %s (e.g., 0.01):", symbol))
	}

	amount := tokenAt(tokens, 3)
	raw, err := ParseAmount(amount, chain.NativeDecimals)
	if err != nil {
		return end(msgInvalidAmount)
	}

	transfer, resp, ok := s.newTransfer(user, models.TxTypeNativeSend)
	if !ok {
		return resp
	}
	transfer.To = to
	transfer.Amount = amount
	transfer.AmountRaw = raw

	header := []string{
		"Confirm Send",
		"To: " + to,
		fmt.Sprintf("Amount: %s %s", amount, symbol),
	}

	return s.previewOrConfirm(ctx, tokens, 4, transfer, header, func(result *chain.SubmitResult) string {
		s.transactor.Notify(phone, fmt.Sprintf("%s Transfer\nTo: %s\nAmount: %s %s\nTx: %s", symbol, to, amount, symbol, result.Hash))

		switch result.Status {
		case chain.ReceiptSuccess:
			return fmt.Sprintf("Success! Sent %s %s. Tx: %s", amount, symbol, result.Hash)
		case chain.ReceiptFailed:
			return fmt.Sprintf("Transaction failed on-chain. Tx: %s", result.Hash)
		}
		return fmt.Sprintf("Submitted. Tx: %s", result.Hash)
	})
}

func (s *USSDService) tokenAssociate(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 4 {
		return end(msgInvalidOption)
	}

	user, resp, ok := s.authorize(ctx, phone, tokens, msgEnterPIN, msgNoAccount)
	if !ok {
		return resp
	}

	if len(tokens) == 2 {
		return con(msgTokenPrompt)
	}

	token := tokenAt(tokens, 2)
	if !chain.IsAddress(token) {
		return end(msgInvalidToken)
	}

	transfer, resp, ok := s.newTransfer(user, models.TxTypeTokenAssociate)
	if !ok {
		return resp
	}
	transfer.TokenAddress = token

	header := []string{"Associate Token?", "Token: " + token}

	return s.previewOrConfirm(ctx, tokens, 3, transfer, header, func(result *chain.SubmitResult) string {
		if result.Status == chain.ReceiptFailed {
			return fmt.Sprintf("Token association failed on-chain. Tx: %s", result.Hash)
		}
		return fmt.Sprintf("Token associated. Tx: %s", result.Hash)
	})
}

func (s *USSDService) tokenTransfer(ctx context.Context, phone string, tokens []string) USSDResponse {
	if len(tokens) > 6 {
		return end(msgInvalidOption)
	}

	user, resp, ok := s.authorize(ctx, phone, tokens, msgEnterPIN, msgNoAccount)
	if !ok {
		return resp
	}

	if len(tokens) == 2 {
		return con(msgTokenPrompt)
	}

	token := tokenAt(tokens, 2)
	if !chain.IsAddress(token) {
		return end(msgInvalidToken)
	}
	if len(tokens) == 3 {
		return con(msgRecipient)
	}

	to := tokenAt(tokens, 3)
	if !chain.IsAddress(to) {
		return end("Invalid recipient address")
	}
	if len(tokens) == 4 {
		return con("Enter amount (token units, e.g., 1.5):")
	}

	amount := tokenAt(tokens, 4)
	if !ValidAmount(amount) {
		return end(msgInvalidAmount)
	}

	// Decimals differ per token and are read again at both preview and
	// confirm.
	meta, err := s.chain.ReadTokenMetadata(ctx, token)
	if err != nil {
		log.Printf("[USSD] tokenTransfer - metadata for %s failed: %v", token, err)
		return end("Failed to read token details")
	}

	raw, err := ParseAmount(amount, meta.Decimals)
	if err != nil {
		return end(msgInvalidAmount)
	}

	transfer, resp, ok := s.newTransfer(user, models.TxTypeTokenTransfer)
	if !ok {
		return resp
	}
	transfer.To = to
	transfer.TokenAddress = token
	transfer.TokenSymbol = meta.Symbol
	transfer.Amount = amount
	transfer.AmountRaw = raw

	header := []string{
		"Confirm Token Transfer",
		"Token: " + meta.Symbol,
		"To: " + to,
		"Amount: " + amount,
	}

	return s.previewOrConfirm(ctx, tokens, 5, transfer, header, func(result *chain.SubmitResult) string {
		s.transactor.Notify(phone, fmt.Sprintf("Token Transfer\nToken: %s\nTo: %s\nAmount: %s\nTx: %s", meta.Symbol, to, amount, result.Hash))

		if result.Status == chain.ReceiptFailed {
			return fmt.Sprintf("Token transfer failed on-chain. Tx: %s", result.Hash)
		}
		return fmt.Sprintf("Token transfer submitted. Tx: %s", result.Hash)
	})
}

// newTransfer decrypts the signing key for a verified user.
func (s *USSDService) newTransfer(user *models.User, txType models.TransactionType) (*Transfer, USSDResponse, bool) {
	privateKey, err := s.hsm.DecryptPrivateKey(user.PrivateKey)
	if err != nil {
		log.Printf("[USSD] newTransfer - decrypt for %s failed: %v", user.PhoneNumber, err)
		return nil, end(msgGenericError), false
	}

	return &Transfer{
		Type:        txType,
		PhoneNumber: user.PhoneNumber,
		PrivateKey:  privateKey,
		From:        user.PublicKey,
	}, USSDResponse{}, true
}

// previewOrConfirm runs the two-phase protocol. At previewDepth it shows the
// fee estimate; one step deeper it submits only when the confirm literal was
// entered.
func (s *USSDService) previewOrConfirm(ctx context.Context, tokens []string, previewDepth int, transfer *Transfer, header []string, done func(*chain.SubmitResult) string) USSDResponse {
	if len(tokens) == previewDepth {
		fee, err := s.transactor.EstimateFee(ctx, transfer)
		if err != nil {
			log.Printf("[USSD] previewOrConfirm - %s estimate for %s failed: %v", transfer.Type, transfer.PhoneNumber, err)
			return end(msgFeeFailed)
		}

		lines := append(header,
			fmt.Sprintf("Est. Fee: %s %s", fee, s.transactor.NativeSymbol()),
			"1. Confirm",
			"0. Cancel",
		)
		return con(strings.Join(lines, "\n"))
	}

	if tokenAt(tokens, previewDepth) != confirmChoice {
		return end(msgCancelled)
	}

	result, err := s.transactor.Execute(ctx, transfer)
	if err != nil {
		log.Printf("[USSD] previewOrConfirm - %s for %s failed: %v", transfer.Type, transfer.PhoneNumber, err)
		return end(FailureMessage(err))
	}

	log.Printf("[USSD] previewOrConfirm - %s submitted for %s: %s (%s)", transfer.Type, transfer.PhoneNumber, result.Hash, result.Status)
	return end(done(result))
}
