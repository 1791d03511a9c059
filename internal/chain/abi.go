package chain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// HTSPrecompile is the Hedera Token Service system contract.
const HTSPrecompile = "0x0000000000000000000000000000000000000167"

const erc20JSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const htsJSON = `[
	{"type":"function","name":"associateToken","stateMutability":"nonpayable","inputs":[{"name":"account","type":"address"},{"name":"token","type":"address"}],"outputs":[{"name":"responseCode","type":"int64"}]}
]`

var (
	erc20ABI = mustParseABI(erc20JSON)
	htsABI   = mustParseABI(htsJSON)

	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}

// IsAddress reports whether s is a 0x-prefixed 40 hex character address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// EncodeTransfer packs an ERC-20 transfer(to, value) call.
func EncodeTransfer(to string, value *big.Int) ([]byte, error) {
	if !IsAddress(to) {
		return nil, fmt.Errorf("invalid recipient address %q", to)
	}
	return erc20ABI.Pack("transfer", common.HexToAddress(to), value)
}

// EncodeAssociate packs an HTS associateToken(account, token) call.
func EncodeAssociate(account, token string) ([]byte, error) {
	if !IsAddress(account) || !IsAddress(token) {
		return nil, fmt.Errorf("invalid association addresses %q / %q", account, token)
	}
	return htsABI.Pack("associateToken", common.HexToAddress(account), common.HexToAddress(token))
}
