/*

This file contains the integer scoring functions used to rank strategies and providers.

*/

package analyzer

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

func riskDivisor(risk uint64) uint64 {
	if risk == 0 {
		return 1
	}
	return risk
}

// RiskAdjustedReturn is apy scaled by MAX_RISK_SCORE/risk, so a risk of 100 returns the raw APY.
func RiskAdjustedReturn(apyBps, risk uint64) uint64 {
	return apyBps * types.MaxRiskScore / riskDivisor(risk)
}

// StrategyScore is apy * performanceScore / max(risk, 1).
func StrategyScore(apyBps, performanceScore, risk uint64) sdkmath.Int {
	return sdkmath.NewIntFromUint64(apyBps).
		Mul(sdkmath.NewIntFromUint64(performanceScore)).
		Quo(sdkmath.NewIntFromUint64(riskDivisor(risk)))
}
