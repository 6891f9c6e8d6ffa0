package ethutil

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the fixed-point scale of the native currency and of the
// factory's tokens.
const NativeDecimals = 18

// ToWei converts a native-unit decimal to its smallest unit, truncating any
// sub-wei remainder. Negative values map to zero.
func ToWei(amount decimal.Decimal) *big.Int {
	if amount.Sign() <= 0 {
		return new(big.Int)
	}
	return amount.Shift(NativeDecimals).Truncate(0).BigInt()
}

// FromWei is the inverse of ToWei. A nil amount is treated as zero.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals)
}

// FormatWei renders wei as an 18-decimal fixed-point string without trailing
// zeros (e.g. 1500000000000000000 -> "1.5").
func FormatWei(wei *big.Int) string {
	return FromWei(wei).String()
}
