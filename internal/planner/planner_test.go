package planner

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/types"
)

func delta(id types.StrategyID, amount int64) manager.Allocation {
	return manager.Allocation{StrategyID: id, Amount: sdkmath.NewInt(amount)}
}

func TestGeneratePlanSplitsDirections(t *testing.T) {
	plan, err := GeneratePlan([]manager.Allocation{delta(1, -2000), delta(2, 1500), delta(3, 500), delta(4, 0)}, sdkmath.NewInt(10_000), Limits{})
	require.NoError(t, err)

	require.Len(t, plan.Withdrawals, 1)
	assert.Equal(t, types.MoveWithdraw, plan.Withdrawals[0].Direction)
	assert.Equal(t, "2000", plan.Withdrawals[0].Amount.String())

	require.Len(t, plan.Deposits, 2)
	assert.Equal(t, "1500", plan.Deposits[0].Amount.String())
	assert.Equal(t, "500", plan.Deposits[1].Amount.String())
	assert.False(t, plan.Empty())
}

func TestGeneratePlanCapsWithdrawals(t *testing.T) {
	plan, err := GeneratePlan([]manager.Allocation{delta(1, -3000), delta(2, -1000), delta(3, 4000)}, sdkmath.NewInt(10_000), Limits{MaxWithdrawBps: 1000})
	require.NoError(t, err)

	assert.Equal(t, "1000", plan.TotalWithdrawn().String())
	assert.Equal(t, "750", plan.Withdrawals[0].Amount.String())
	assert.Equal(t, "250", plan.Withdrawals[1].Amount.String())
	require.Len(t, plan.Deposits, 1)
	assert.Equal(t, "1000", plan.Deposits[0].Amount.String())
}

func TestFitDeposits(t *testing.T) {
	deposits := []types.StrategyMove{
		{StrategyID: 1, Direction: types.MoveDeposit, Amount: sdkmath.NewInt(300)},
		{StrategyID: 2, Direction: types.MoveDeposit, Amount: sdkmath.NewInt(100)},
	}
	assert.Len(t, FitDeposits(deposits, sdkmath.NewInt(1000)), 2)
	assert.Nil(t, FitDeposits(deposits, sdkmath.ZeroInt()))

	fitted := FitDeposits(deposits, sdkmath.NewInt(200))
	require.Len(t, fitted, 2)
	assert.Equal(t, "150", fitted[0].Amount.String())
	assert.Equal(t, "50", fitted[1].Amount.String())
}

func TestGeneratePlanEmpty(t *testing.T) {
	plan, err := GeneratePlan(nil, sdkmath.NewInt(100), Limits{})
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	_, err = GeneratePlan(nil, sdkmath.NewInt(-1), Limits{})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
}
