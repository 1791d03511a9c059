package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/repository"
)

const (
	chatHelp = "DeXa wallet commands:\n" +
		"BALANCE - check your balance\n" +
		"ADDRESS - show your deposit address\n" +
		"HISTORY - your last payments\n" +
		"SEND <amount> %[1]s TO <0x address or phone> - send %[1]s\n" +
		"EXPORT <PIN> - receive your private key by SMS\n" +
		"HELP - show this message\n" +
		"Every payment needs a confirmation: reply YES <PIN>."
	chatOnboarding    = "Welcome to DeXa! You don't have a wallet yet. Dial the DeXa USSD code and choose 1. Create Account to get started."
	chatUnknown       = "I didn't catch that. Reply HELP to see available commands."
	chatTimedOut      = "Confirmation timed out. Start again when you are ready."
	chatDeclined      = "Payment cancelled."
	chatNeedPIN       = "Reply YES <PIN> to confirm the payment, or NO to cancel."
	chatGenericError  = "Something went wrong. Please try again later."
	chatInvalidSend   = "Invalid payment. Use SEND <amount> %s TO <0x address or phone>."
	chatBalanceFailed = "Failed to fetch balance. Please try again later."
	chatExportPIN     = "Reply EXPORT <PIN> to receive your private key by SMS."
	chatExported      = "Your private key has been sent to you by SMS. Never share it with anyone."
	chatNoRecipient   = "No DeXa wallet is registered for %s."
)

// MessageService answers SMS and WhatsApp chat commands.
type MessageService struct {
	wallet         *WalletService
	pending        PendingStore
	locker         SessionLocker
	confirmTimeout time.Duration
	historyLimit   int
	sendPattern    *regexp.Regexp
	confirmPattern *regexp.Regexp
	exportPattern  *regexp.Regexp
}

func NewMessageService(wallet *WalletService, pending PendingStore, locker SessionLocker, confirmTimeout time.Duration, historyLimit int) *MessageService {
	symbol := regexp.QuoteMeta(wallet.NativeSymbol())
	return &MessageService{
		wallet:         wallet,
		pending:        pending,
		locker:         locker,
		confirmTimeout: confirmTimeout,
		historyLimit:   historyLimit,
		sendPattern:    regexp.MustCompile(`(?i)^send\s+(\S+)\s+(?:` + symbol + `\s+)?(?:to\s+)?(\S+)$`),
		confirmPattern: regexp.MustCompile(`(?i)^(?:yes|confirm)(?:\s+(\S+))?$`),
		exportPattern:  regexp.MustCompile(`(?i)^export\s+(\S+)$`),
	}
}

// NormalizeSender strips the WhatsApp channel prefix from a sender id.
func NormalizeSender(from string) string {
	return strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:")
}

// Handle returns the reply text for one inbound message.
func (s *MessageService) Handle(ctx context.Context, from, body string) string {
	phone := NormalizeSender(from)
	if phone == "" {
		return chatGenericError
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, phone)
		switch {
		case errors.Is(err, ErrLockBusy):
			return msgBusy
		case err != nil:
			log.Printf("[MESSAGE] Handle - lock unavailable for %s, continuing unlocked: %v", phone, err)
		default:
			defer unlock()
		}
	}

	user, err := s.wallet.User(ctx, phone)
	if errors.Is(err, repository.ErrUserNotFound) {
		return chatOnboarding
	}
	if err != nil {
		log.Printf("[MESSAGE] Handle - lookup %s failed: %v", phone, err)
		return chatGenericError
	}

	text := strings.Join(strings.Fields(body), " ")
	command := strings.ToLower(text)
	symbol := s.wallet.NativeSymbol()

	switch {
	case command == "help" || command == "":
		return fmt.Sprintf(chatHelp, symbol)
	case command == "balance":
		return s.balance(ctx, phone)
	case command == "address":
		return fmt.Sprintf("Your wallet address:\n%s\nNetwork: chain id %d\nToken: %s", user.PublicKey, s.wallet.ChainID(), symbol)
	case command == "history":
		return s.history(ctx, phone)
	case command == "no" || command == "cancel":
		return s.decline(ctx, phone)
	case command == "export":
		return chatExportPIN
	case s.exportPattern.MatchString(text):
		return s.export(ctx, phone, s.exportPattern.FindStringSubmatch(text)[1])
	case s.confirmPattern.MatchString(text):
		return s.confirm(ctx, phone, s.confirmPattern.FindStringSubmatch(text)[1])
	case strings.HasPrefix(command, "send"):
		return s.preview(ctx, phone, text)
	}
	return chatUnknown
}

func (s *MessageService) balance(ctx context.Context, phone string) string {
	balance, err := s.wallet.Balance(ctx, phone)
	if err != nil {
		log.Printf("[MESSAGE] balance - %s failed: %v", phone, err)
		return chatBalanceFailed
	}
	return fmt.Sprintf("%s Balance\nAddress: %s\nBalance: %s %s", balance.Token, balance.Address, balance.Balance, balance.Token)
}

func (s *MessageService) history(ctx context.Context, phone string) string {
	txs, err := s.wallet.Transactions(ctx, phone, s.historyLimit)
	if err != nil {
		log.Printf("[MESSAGE] history - %s failed: %v", phone, err)
		return chatGenericError
	}
	if len(txs) == 0 {
		return "No transactions yet"
	}
	return "Last Tx:\n" + FormatHistory(txs, s.wallet.NativeSymbol())
}

func (s *MessageService) preview(ctx context.Context, phone, text string) string {
	symbol := s.wallet.NativeSymbol()

	match := s.sendPattern.FindStringSubmatch(text)
	if match == nil || !ValidAmount(match[1]) {
		return fmt.Sprintf(chatInvalidSend, symbol)
	}
	amount, target := match[1], match[2]

	to, err := s.wallet.ResolveRecipient(ctx, target)
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return fmt.Sprintf(chatInvalidSend, symbol)
	case errors.Is(err, ErrUnknownRecipient):
		return fmt.Sprintf(chatNoRecipient, target)
	case err != nil:
		log.Printf("[MESSAGE] preview - resolve %s for %s failed: %v", target, phone, err)
		return chatGenericError
	}

	fee, err := s.wallet.EstimateSend(ctx, phone, to, amount)
	if err != nil {
		if errors.Is(err, chain.ErrInvalidAmount) {
			return fmt.Sprintf(chatInvalidSend, symbol)
		}
		log.Printf("[MESSAGE] preview - estimate for %s failed: %v", phone, err)
		return msgFeeFailed + ". Please try again later."
	}

	pending := &PendingSend{To: to, Amount: amount, Fee: fee, CreatedAt: time.Now()}
	if to != target {
		pending.Recipient = target
	}
	if err := s.pending.Save(ctx, phone, pending, s.confirmTimeout); err != nil {
		log.Printf("[MESSAGE] preview - park confirmation for %s failed: %v", phone, err)
		return chatGenericError
	}

	return fmt.Sprintf("About to send:\nTo: %s\nAmount: %s %s\nEst. Fee: %s %s\n\nReply YES <PIN> within %s to confirm, or NO to cancel.",
		pending.Label(), amount, symbol, fee, symbol, humanDuration(s.confirmTimeout))
}

func (s *MessageService) confirm(ctx context.Context, phone, pin string) string {
	if pin == "" {
		return chatNeedPIN
	}

	pending, err := s.pending.Take(ctx, phone)
	if err != nil {
		log.Printf("[MESSAGE] confirm - load confirmation for %s failed: %v", phone, err)
		return chatGenericError
	}
	if pending == nil {
		return chatTimedOut
	}

	result, err := s.wallet.Send(ctx, phone, pin, pending.To, pending.Amount)
	if err != nil {
		var locked *PinLockedError
		switch {
		case errors.Is(err, ErrInvalidPIN):
			return "Invalid PIN. " + chatDeclined
		case errors.As(err, &locked):
			return locked.Error()
		}
		log.Printf("[MESSAGE] confirm - send for %s failed: %v", phone, err)
		return FailureMessage(err)
	}

	symbol := s.wallet.NativeSymbol()
	switch result.Status {
	case chain.ReceiptSuccess:
		return fmt.Sprintf("Success! Sent %s %s to %s\nTx: %s", pending.Amount, symbol, pending.Label(), result.Hash)
	case chain.ReceiptFailed:
		return fmt.Sprintf("Transaction failed on-chain.\nTx: %s", result.Hash)
	}
	return fmt.Sprintf("Submitted. Tx: %s", result.Hash)
}

func (s *MessageService) export(ctx context.Context, phone, pin string) string {
	err := s.wallet.ExportKey(ctx, phone, pin)
	if err == nil {
		return chatExported
	}

	var locked *PinLockedError
	switch {
	case errors.Is(err, ErrInvalidPIN):
		return "Invalid PIN."
	case errors.As(err, &locked):
		return locked.Error()
	}
	log.Printf("[MESSAGE] export - %s failed: %v", phone, err)
	return chatGenericError
}

func (s *MessageService) decline(ctx context.Context, phone string) string {
	pending, err := s.pending.Take(ctx, phone)
	if err != nil {
		log.Printf("[MESSAGE] decline - %s failed: %v", phone, err)
		return chatGenericError
	}
	if pending == nil {
		return chatTimedOut
	}
	return chatDeclined
}

func humanDuration(d time.Duration) string {
	if d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}
