package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/holiman/uint256"
)

// DefaultDecimals is the number of fractional digits shown for one whole token.
// Balances and transfers are always expressed in the smallest fragment unit.
const DefaultDecimals uint8 = 9

// ParseAmount parses a base-10 fragment amount. Hex input (0x...) is accepted as well.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "0x") {
		v, err := uint256.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// NewAmountFromWhole converts whole tokens to fragments (whole * 10^decimals).
func NewAmountFromWhole(whole uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(whole), scale)
}

// FormatAmount renders a fragment amount as whole tokens with thousands separators
// (for display only, never arithmetic).
func FormatAmount(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(v.ToBig(), scale, new(big.Int))

	out := humanize.BigComma(whole)
	if decimals == 0 || frac.Sign() == 0 {
		return out
	}
	digits := frac.String()
	if pad := int(decimals) - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return out + "." + strings.TrimRight(digits, "0")
}
