package chain

import (
	"errors"
	"math/big"
	"strings"
)

// NativeDecimals is the precision of the native currency on the EVM relay.
const NativeDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits converts a human decimal string such as "1.5" into integer base
// units for the given precision. The fractional part is right-padded or
// truncated to exactly decimals digits. A missing whole or fractional part is
// treated as zero, so "", ".5" and "3." are all accepted.
func ToBaseUnits(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	amount = strings.TrimSpace(amount)
	whole, frac, _ := strings.Cut(amount, ".")
	if strings.Contains(frac, ".") || !isDigits(whole) || !isDigits(frac) {
		return nil, ErrInvalidAmount
	}

	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	} else {
		frac += strings.Repeat("0", decimals-len(frac))
	}

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return value, nil
}

// ToHuman renders base units as a decimal string without trailing zeros.
func ToHuman(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	digits := new(big.Int).Abs(value).String()
	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	if decimals <= 0 {
		return sign + digits
	}

	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
