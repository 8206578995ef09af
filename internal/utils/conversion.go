/*
This file contains common utility functions for basis point arithmetic and
for converting raw token amounts into display values.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// MulBps returns floor(amount * bps / 10000).
func MulBps(amount sdkmath.Int, bps uint64) sdkmath.Int {
	if amount.IsNil() || amount.IsZero() || bps == 0 {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewIntFromUint64(bps)).QuoRaw(BpsDenominator)
}

// BpsOf returns floor(part * 10000 / total), or 0 when total is not positive.
// Negative parts are measured by magnitude.
func BpsOf(part, total sdkmath.Int) uint64 {
	if total.IsNil() || !total.IsPositive() || part.IsNil() {
		return 0
	}
	ratio := part.Abs().MulRaw(BpsDenominator).Quo(total)
	if !ratio.IsUint64() {
		return math.MaxUint64
	}
	return ratio.Uint64()
}

// SumInts adds a slice of amounts, treating nil entries as zero.
func SumInts(amounts []sdkmath.Int) sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for _, a := range amounts {
		if a.IsNil() {
			continue
		}
		sum = sum.Add(a)
	}
	return sum
}

// Pow10 returns 10^exp as an SDK Int.
func Pow10(exp uint64) sdkmath.Int {
	result := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := uint64(0); i < exp; i++ {
		result = result.Mul(ten)
	}
	return result
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	factor := sdkmath.LegacyNewDecFromInt(Pow10(uint64(precision)))

	result := decAmount.Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}
