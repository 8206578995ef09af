package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/config"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/keeper"
	"github.com/elys-network/yieldvault/internal/types"
)

func TestBootstrapExampleVault(t *testing.T) {
	ctx := context.Background()
	file, err := config.LoadVaultFile("../../configs/vault.yaml")
	require.NoError(t, err)

	recorder := events.NewRecorder()
	d, err := bootstrap(ctx, file, "owner", recorder, zerolog.Nop())
	require.NoError(t, err)

	infos := d.vault.GetAllStrategiesInfo(ctx)
	require.Len(t, infos, 3)
	assert.Equal(t, "money-market", infos[0].Name)
	assert.Equal(t, uint64(450), infos[0].APY)
	assert.Len(t, recorder.OfType(events.ProviderAdded), 2)
	assert.Len(t, recorder.OfType(events.PoolAdded), 2)

	summary, err := d.vault.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "350000000000", summary.TotalAssets.String())
	assert.InDelta(t, 350000.0, summary.TotalAssetsUnit, 1e-6)
	assert.Equal(t, 2, summary.Depositors)

	k, err := keeper.New(keeper.Config{Vault: d.vault, Operator: "owner"})
	require.NoError(t, err)
	snap, err := k.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "315000000000", snap.Deployed.String())
	assert.Equal(t, "35000000000", snap.Reserve.String())
	assert.Equal(t, "350000000000", snap.TotalAssetsAfter.String())
	assert.Empty(t, snap.Failures)
	for _, alloc := range snap.Allocations {
		assert.True(t, alloc.TotalAssets.IsPositive(), alloc.Name)
	}
}

func TestBootstrapRejectsForeignOwner(t *testing.T) {
	file, err := config.ParseVaultFile([]byte(`
strategies:
  - {name: lend, kind: lending, weight_bps: 1, max_allocation_bps: 10000, rate_bps: 100}
`))
	require.NoError(t, err)

	_, err = bootstrap(context.Background(), file, "", nil, zerolog.Nop())
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
