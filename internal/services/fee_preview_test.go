package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/models"
	"github.com/dexa-wallet/backend/internal/notification"
	"github.com/dexa-wallet/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestValidAmount(t *testing.T) {
	for _, amount := range []string{"1", "0.01", "2.50", "100000"} {
		assert.True(t, ValidAmount(amount), amount)
	}
	for _, amount := range []string{"", ".", "0", "0.00", "-1", "1e3", "1,5", " 1", "1.2.3"} {
		assert.False(t, ValidAmount(amount), amount)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
		wantErr  bool
	}{
		{"0.01", 18, "10000000000000000", false},
		{"2.5", 6, "2500000", false},
		{"1.1234567", 6, "1123456", false},
		{"0.0000001", 6, "", true},
		{"abc", 18, "", true},
		{"0", 8, "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%d", tt.amount, tt.decimals), func(t *testing.T) {
			raw, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, chain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.String())
		})
	}
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Failed: execution reverted", FailureMessage(&chain.RevertError{Reason: "execution reverted"}))
	assert.Equal(t, "Failed: execution reverted", FailureMessage(fmt.Errorf("wrapped: %w", &chain.RevertError{Reason: "execution reverted"})))
	assert.Equal(t, "Failed: transaction could not be submitted. Please try again later.", FailureMessage(errors.New("dial tcp")))
}

func TestTransfer_Intent(t *testing.T) {
	value := big.NewInt(42)

	native := &Transfer{Type: models.TxTypeNativeSend, PrivateKey: "k", To: testRecipient, AmountRaw: value}
	intent, err := native.intent()
	require.NoError(t, err)
	assert.Equal(t, testRecipient, intent.To)
	assert.Equal(t, value, intent.Value)
	assert.Empty(t, intent.Data)

	token := &Transfer{Type: models.TxTypeTokenTransfer, To: testRecipient, TokenAddress: testToken, AmountRaw: value}
	intent, err = token.intent()
	require.NoError(t, err)
	assert.Equal(t, testToken, intent.To)
	assert.Nil(t, intent.Value)
	assert.Len(t, intent.Data, 68)

	assoc := &Transfer{Type: models.TxTypeTokenAssociate, From: testRecipient, TokenAddress: testToken}
	intent, err = assoc.intent()
	require.NoError(t, err)
	assert.Equal(t, chain.HTSPrecompile, intent.To)

	_, err = (&Transfer{Type: "unknown"}).intent()
	assert.Error(t, err)
}

func TestTransactor_ExecuteWritesOneRecord(t *testing.T) {
	f := newWalletFixture(t)
	f.chain.On("Submit", mock.Anything, mock.Anything).Return(&chain.SubmitResult{Hash: testTxHash, Status: chain.ReceiptSuccess}, nil).Once()

	result, err := f.transactor.Execute(context.Background(), &Transfer{
		Type:        models.TxTypeNativeSend,
		PhoneNumber: testPhone,
		PrivateKey:  "k",
		From:        "0xfrom",
		To:          testRecipient,
		Amount:      "1",
		AmountRaw:   big.NewInt(1000000000000000000),
	})
	require.NoError(t, err)
	assert.Equal(t, testTxHash, result.Hash)

	ledger := f.store.ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, "1000000000000000000", ledger[0].AmountRaw)
	assert.Equal(t, int64(296), ledger[0].ChainID)
	assert.Nil(t, ledger[0].TokenAddress)
}

func TestTransactor_ExecuteRecordsAfterCallerCancels(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	chainClient := new(MockChain)
	transactor := NewTransactor(chainClient, repository.NewPostgresStore(db), nil, nil, "HBAR")

	// The gateway hangs up while the receipt wait is running.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chainClient.On("Submit", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&chain.SubmitResult{Hash: testTxHash, Status: chain.ReceiptPending}, nil).Once()

	sqlMock.ExpectQuery("INSERT INTO transactions").
		WithArgs(testPhone, "native-send", "0xfrom", testRecipient, sqlmock.AnyArg(), sqlmock.AnyArg(),
			"0.01", "10000000000000000", testTxHash, "pending", int64(296), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	result, err := transactor.Execute(ctx, &Transfer{
		Type:        models.TxTypeNativeSend,
		PhoneNumber: testPhone,
		PrivateKey:  "k",
		From:        "0xfrom",
		To:          testRecipient,
		Amount:      "0.01",
		AmountRaw:   big.NewInt(10000000000000000),
	})
	require.NoError(t, err)
	assert.Equal(t, chain.ReceiptPending, result.Status)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
	chainClient.AssertNumberOfCalls(t, "Submit", 1)
}

func TestTransactor_Notify(t *testing.T) {
	f := newWalletFixture(t)

	f.transactor.Notify(testPhone, "hello")
	f.transactor.NotifySecret(testPhone, "secret")

	sent := f.notifier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, notification.ChannelSMS, sent[0].Channel)
	assert.False(t, sent[0].Sensitive)
	assert.True(t, sent[1].Sensitive)

	silent := NewTransactor(f.chain, f.store, nil, nil, "")
	assert.NotPanics(t, func() { silent.Notify(testPhone, "x") })
	assert.Equal(t, "HBAR", silent.NativeSymbol())
}
