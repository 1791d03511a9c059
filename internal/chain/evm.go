package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ReceiptStatus is the outcome observed while waiting for a receipt.
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "success"
	ReceiptFailed  ReceiptStatus = "failed"
	ReceiptPending ReceiptStatus = "pending" // not mined before the wait timed out
)

// TxIntent describes a call to sign and send from a custodial key.
type TxIntent struct {
	PrivateKey string
	To         string
	Value      *big.Int
	Data       []byte
}

// SubmitResult is returned once the node accepted a transaction.
type SubmitResult struct {
	Hash   string
	Status ReceiptStatus
}

// TokenMetadata is read from the token contract on every use.
type TokenMetadata struct {
	Decimals int
	Symbol   string
}

// RevertError carries the node's rejection message for a submission.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return e.Reason
}

// EVMClient implements the wallet's chain operations over JSON-RPC.
type EVMClient struct {
	rpc            *ethclient.Client
	chainID        *big.Int
	receiptTimeout time.Duration
}

// Config holds the RPC endpoint settings.
type Config struct {
	RPCURL         string
	ChainID        int64
	ReceiptTimeout time.Duration
}

// Dial connects to the RPC endpoint. When no chain id is configured it is
// read from the node.
func Dial(ctx context.Context, cfg Config) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log.Printf("[CHAIN] Connected to %s (chain id %s)", cfg.RPCURL, chainID)
	return &EVMClient{rpc: client, chainID: chainID, receiptTimeout: timeout}, nil
}

// ChainID returns the id used for signing.
func (c *EVMClient) ChainID() int64 {
	return c.chainID.Int64()
}

func (c *EVMClient) Close() {
	c.rpc.Close()
}

// GetBalance returns the native balance in base units.
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	return c.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// EstimateFee prices the exact call at the current gas price.
func (c *EVMClient) EstimateFee(ctx context.Context, intent TxIntent) (*big.Int, error) {
	msg, err := c.callMsg(intent)
	if err != nil {
		return nil, err
	}

	gas, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	return new(big.Int).Mul(new(big.Int).SetUint64(gas), price), nil
}

// Submit signs and sends the intent, then waits for the receipt up to the
// configured timeout.
func (c *EVMClient) Submit(ctx context.Context, intent TxIntent) (*SubmitResult, error) {
	key, err := parseKey(intent.PrivateKey)
	if err != nil {
		return nil, err
	}

	msg, err := c.callMsg(intent)
	if err != nil {
		return nil, err
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	gas, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classifySubmitError(err)
	}

	price, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       msg.To,
		Value:    msg.Value,
		Data:     msg.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return nil, classifySubmitError(err)
	}

	result := &SubmitResult{Hash: signed.Hash().Hex(), Status: ReceiptPending}

	// The transaction is on the wire; a caller hanging up must not cut the
	// receipt wait short.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.receiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.rpc, signed)
	if err != nil {
		log.Printf("[CHAIN] Receipt wait for %s ended without receipt: %v", result.Hash, err)
		return result, nil
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Status = ReceiptSuccess
	} else {
		result.Status = ReceiptFailed
	}
	return result, nil
}

// ReadTokenMetadata queries decimals and symbol from the token contract.
// A missing symbol falls back to "TOKEN"; decimals are mandatory.
func (c *EVMClient) ReadTokenMetadata(ctx context.Context, tokenAddress string) (*TokenMetadata, error) {
	if !IsAddress(tokenAddress) {
		return nil, fmt.Errorf("invalid token address %q", tokenAddress)
	}
	token := common.HexToAddress(tokenAddress)

	raw, err := c.call(ctx, token, "decimals")
	if err != nil {
		return nil, fmt.Errorf("read decimals: %w", err)
	}
	out, err := erc20ABI.Unpack("decimals", raw)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("decode decimals: %v", err)
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return nil, errors.New("decode decimals: unexpected type")
	}

	meta := &TokenMetadata{Decimals: int(decimals), Symbol: "TOKEN"}

	if raw, err := c.call(ctx, token, "symbol"); err == nil {
		if out, err := erc20ABI.Unpack("symbol", raw); err == nil && len(out) > 0 {
			if symbol, ok := out[0].(string); ok && symbol != "" {
				meta.Symbol = symbol
			}
		}
	}

	return meta, nil
}

// AssociateToken associates the key's account with an HTS token through the
// precompile.
func (c *EVMClient) AssociateToken(ctx context.Context, privateKey, tokenAddress string) (*SubmitResult, error) {
	account, err := AddressFromKey(privateKey)
	if err != nil {
		return nil, err
	}

	data, err := EncodeAssociate(account, tokenAddress)
	if err != nil {
		return nil, err
	}

	return c.Submit(ctx, TxIntent{PrivateKey: privateKey, To: HTSPrecompile, Data: data})
}

func (c *EVMClient) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	return c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *EVMClient) callMsg(intent TxIntent) (ethereum.CallMsg, error) {
	from, err := AddressFromKey(intent.PrivateKey)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	if !IsAddress(intent.To) {
		return ethereum.CallMsg{}, fmt.Errorf("invalid destination %q", intent.To)
	}

	to := common.HexToAddress(intent.To)
	value := intent.Value
	if value == nil {
		value = big.NewInt(0)
	}

	return ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    &to,
		Value: value,
		Data:  intent.Data,
	}, nil
}

// classifySubmitError turns JSON-RPC rejections from the node into a
// RevertError so the caller can show the reason. Transport errors pass
// through unchanged.
func classifySubmitError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RevertError{Reason: rpcErr.Error()}
	}
	return fmt.Errorf("submit: %w", err)
}
