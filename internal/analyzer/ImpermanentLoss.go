/*

This file contains the monitoring functions for liquidity positions: impermanent loss of a
weighted pool and the deviation of a price from its reference.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

var ErrInvalidPrice = errors.New("price must be positive")

// CalculateImpermanentLoss returns the loss, in bps, of a pool position against simply holding
// the tokens, for a pool where weightBps is the weight of the token whose price moved from
// entryPrice to currentPrice. For a weighted pool the value ratio is r^w / (w*r + 1 - w).
func CalculateImpermanentLoss(entryPrice, currentPrice sdkmath.LegacyDec, weightBps uint64) (uint64, error) {
	if entryPrice.IsNil() || !entryPrice.IsPositive() || currentPrice.IsNil() || !currentPrice.IsPositive() {
		return 0, ErrInvalidPrice
	}
	if weightBps == 0 || weightBps >= utils.BpsDenominator {
		return 0, fmt.Errorf("%w: pool weight %d bps", types.ErrInvalidParameter, weightBps)
	}

	ratio, err := currentPrice.Quo(entryPrice).Float64()
	if err != nil {
		return 0, err
	}
	w := float64(weightBps) / utils.BpsDenominator

	valueRatio := math.Pow(ratio, w) / (w*ratio + 1 - w)
	if math.IsNaN(valueRatio) || math.IsInf(valueRatio, 0) {
		return 0, errors.New("impermanent loss calculation resulted in non-finite value")
	}

	loss := 1 - valueRatio
	if loss <= 0 {
		return 0, nil
	}
	return uint64(math.Round(loss * utils.BpsDenominator)), nil
}

// PriceDeviationBps returns |current - reference| / reference in bps.
func PriceDeviationBps(reference, current sdkmath.LegacyDec) (uint64, error) {
	if reference.IsNil() || !reference.IsPositive() || current.IsNil() || current.IsNegative() {
		return 0, ErrInvalidPrice
	}
	deviation := current.Sub(reference).Abs().Quo(reference).MulInt64(utils.BpsDenominator)
	return deviation.TruncateInt().Uint64(), nil
}
