package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMessageService(f *walletFixture) *MessageService {
	return NewMessageService(f.wallet(""), NewMemoryPendingStore(), NewMemoryLocker(100*time.Millisecond), 2*time.Minute, 5)
}

func TestNormalizeSender(t *testing.T) {
	assert.Equal(t, testPhone, NormalizeSender("whatsapp:"+testPhone))
	assert.Equal(t, testPhone, NormalizeSender(" "+testPhone+" "))
}

func TestMessageService_Onboarding(t *testing.T) {
	f := newWalletFixture(t)
	svc := newTestMessageService(f)

	assert.Equal(t, chatOnboarding, svc.Handle(context.Background(), "whatsapp:"+testPhone, "balance"))
	assert.Equal(t, chatGenericError, svc.Handle(context.Background(), "whatsapp:", "balance"))
}

func TestMessageService_Commands(t *testing.T) {
	f := newWalletFixture(t)
	address := f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()
	from := "whatsapp:" + testPhone

	help := svc.Handle(ctx, from, "HELP")
	assert.Equal(t, fmt.Sprintf(chatHelp, "HBAR"), help)
	assert.Contains(t, help, "SEND <amount> HBAR TO <0x address or phone>")
	assert.Contains(t, help, "EXPORT <PIN>")
	assert.Equal(t, help, svc.Handle(ctx, from, "   "))

	f.chain.On("GetBalance", mock.Anything, address).Return(big.NewInt(2000000000000000000), nil).Once()
	assert.Equal(t, "HBAR Balance\nAddress: "+address+"\nBalance: 2 HBAR", svc.Handle(ctx, from, "Balance"))

	f.chain.On("GetBalance", mock.Anything, address).Return(nil, errors.New("timeout")).Once()
	assert.Equal(t, chatBalanceFailed, svc.Handle(ctx, from, "balance"))

	reply := svc.Handle(ctx, from, "address")
	assert.Contains(t, reply, address)
	assert.Contains(t, reply, "chain id 296")

	assert.Equal(t, "No transactions yet", svc.Handle(ctx, from, "history"))
	assert.Equal(t, chatUnknown, svc.Handle(ctx, from, "pay my rent"))
	assert.Equal(t, fmt.Sprintf(chatInvalidSend, "HBAR"), svc.Handle(ctx, from, "send lots to bob"))
	assert.Equal(t, fmt.Sprintf(chatInvalidSend, "HBAR"), svc.Handle(ctx, from, "send 1 HBAR to 0x12"))
}

func TestMessageService_SendConfirm(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()
	from := "whatsapp:" + testPhone

	f.chain.On("EstimateFee", mock.Anything, mock.Anything).Return(big.NewInt(2100000000000000), nil)
	f.chain.On("Submit", mock.Anything, mock.Anything).Return(&chain.SubmitResult{Hash: testTxHash, Status: chain.ReceiptSuccess}, nil).Once()

	preview := svc.Handle(ctx, from, "send 0.5 HBAR to "+testRecipient)
	assert.True(t, strings.HasPrefix(preview, "About to send:\nTo: "+testRecipient+"\nAmount: 0.5 HBAR\nEst. Fee: 0.0021 HBAR"))
	assert.Contains(t, preview, "within 2 minutes")
	f.chain.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	assert.Equal(t, chatNeedPIN, svc.Handle(ctx, from, "YES"))

	reply := svc.Handle(ctx, from, "YES 1234")
	assert.Equal(t, "Success! Sent 0.5 HBAR to "+testRecipient+"\nTx: "+testTxHash, reply)
	assert.Len(t, f.store.ledger(), 1)

	// The confirmation is single use.
	assert.Equal(t, chatTimedOut, svc.Handle(ctx, from, "yes 1234"))
	f.chain.AssertNumberOfCalls(t, "Submit", 1)

	assert.Equal(t, "Last Tx:\nHBAR -> "+testRecipient+" 0.5", svc.Handle(ctx, from, "history"))
}

func TestMessageService_SendToPhoneNumber(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	friend := f.seedUser(t, "+254700000002")
	svc := newTestMessageService(f)
	ctx := context.Background()

	f.chain.On("EstimateFee", mock.Anything, mock.Anything).Return(big.NewInt(2100000000000000), nil)
	f.chain.On("Submit", mock.Anything, mock.MatchedBy(func(intent chain.TxIntent) bool {
		return intent.To == friend
	})).Return(&chain.SubmitResult{Hash: testTxHash, Status: chain.ReceiptSuccess}, nil).Once()

	preview := svc.Handle(ctx, testPhone, "send 1 HBAR to 254700000002")
	assert.True(t, strings.HasPrefix(preview, "About to send:\nTo: 254700000002 ("+friend+")\nAmount: 1 HBAR"), preview)

	reply := svc.Handle(ctx, testPhone, "yes 1234")
	assert.Equal(t, "Success! Sent 1 HBAR to 254700000002 ("+friend+")\nTx: "+testTxHash, reply)

	ledger := f.store.ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, friend, ledger[0].To)
}

func TestMessageService_SendToUnknownPhone(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)

	reply := svc.Handle(context.Background(), testPhone, "send 1 to +254799999999")
	assert.Equal(t, "No DeXa wallet is registered for +254799999999.", reply)
	assert.Equal(t, chatTimedOut, svc.Handle(context.Background(), testPhone, "yes 1234"))
	f.chain.AssertNotCalled(t, "EstimateFee", mock.Anything, mock.Anything)
}

func TestMessageService_Export(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()
	from := "whatsapp:" + testPhone

	assert.Equal(t, chatExportPIN, svc.Handle(ctx, from, "export"))
	assert.Empty(t, f.notifier.sent())

	assert.Equal(t, "Invalid PIN.", svc.Handle(ctx, from, "EXPORT 0000"))
	assert.Empty(t, f.notifier.sent())
	assert.Equal(t, 1, f.store.user(testPhone).PinRetries)

	reply := svc.Handle(ctx, from, "Export 1234")
	assert.Equal(t, chatExported, reply)
	assert.Equal(t, 0, f.store.user(testPhone).PinRetries)

	sent := f.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testPhone, sent[0].To)
	assert.True(t, sent[0].Sensitive)
	assert.True(t, strings.HasPrefix(sent[0].Body, "Your DeXa private key: "))
	assert.NotContains(t, reply, "private key: ")
}

func TestMessageService_ExportLocked(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()

	svc.Handle(ctx, testPhone, "export 0000")
	svc.Handle(ctx, testPhone, "export 0000")
	assert.Equal(t, "PIN locked. Try again in 5 minute(s).", svc.Handle(ctx, testPhone, "export 0000"))
	assert.Equal(t, "PIN locked. Try again in 5 minute(s).", svc.Handle(ctx, testPhone, "export 1234"))
	assert.Empty(t, f.notifier.sent())
}

func TestMessageService_WrongPINCancels(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()
	from := testPhone

	f.chain.On("EstimateFee", mock.Anything, mock.Anything).Return(big.NewInt(1), nil)

	svc.Handle(ctx, from, "send 1 to "+testRecipient)
	assert.Equal(t, "Invalid PIN. Payment cancelled.", svc.Handle(ctx, from, "confirm 0000"))
	assert.Equal(t, chatTimedOut, svc.Handle(ctx, from, "confirm 1234"))
	f.chain.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestMessageService_Decline(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)
	ctx := context.Background()

	f.chain.On("EstimateFee", mock.Anything, mock.Anything).Return(big.NewInt(1), nil)

	assert.Equal(t, chatTimedOut, svc.Handle(ctx, testPhone, "no"))
	svc.Handle(ctx, testPhone, "send 1 to "+testRecipient)
	assert.Equal(t, chatDeclined, svc.Handle(ctx, testPhone, "NO"))
	assert.Equal(t, chatTimedOut, svc.Handle(ctx, testPhone, "yes 1234"))
}

func TestMessageService_EstimateFailure(t *testing.T) {
	f := newWalletFixture(t)
	f.seedUser(t, testPhone)
	svc := newTestMessageService(f)

	f.chain.On("EstimateFee", mock.Anything, mock.Anything).Return(nil, errors.New("rpc down"))

	reply := svc.Handle(context.Background(), testPhone, "send 1 to "+testRecipient)
	assert.Equal(t, "Failed to estimate fee. Please try again later.", reply)
	assert.Equal(t, chatTimedOut, svc.Handle(context.Background(), testPhone, "yes 1234"))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "2 minutes", humanDuration(2*time.Minute))
	assert.Equal(t, "90 seconds", humanDuration(90*time.Second))
}
