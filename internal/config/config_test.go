package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "owner")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("WEB_PORT", "")
	t.Setenv("KEEPER_SCHEDULE", "")
	t.Setenv("VAULT_CONFIG", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "owner", cfg.OwnerAddress)
	assert.Equal(t, DefaultVaultConfigPath, cfg.VaultConfigPath)
	assert.Equal(t, state.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLitePath)
	assert.Equal(t, DefaultWebPort, cfg.WebPort)
	assert.Equal(t, DefaultKeeperSchedule, cfg.KeeperSchedule)
	assert.True(t, cfg.PersistenceEnabled())
}

func TestLoadConfigRequiresOwner(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "OWNER_ADDRESS")
}

func TestLoadConfigPostgres(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "owner")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "vault")
	t.Setenv("DB_NAME", "yvault")
	t.Setenv("DB_SSLMODE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, state.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	t.Setenv("DB_PORT", "not-a-port")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "DB_PORT")

	t.Setenv("DB_PORT", "")
	t.Setenv("DB_HOST", "")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "DB_HOST")
}

func TestLoadConfigDriverChoices(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "owner")
	t.Setenv("DB_DRIVER", "none")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.PersistenceEnabled())

	t.Setenv("DB_DRIVER", "mysql")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestLoadVaultFileExample(t *testing.T) {
	f, err := LoadVaultFile("../../configs/vault.yaml")
	require.NoError(t, err)

	assert.Equal(t, "USDC", f.Asset.Symbol)
	assert.Equal(t, types.Address("yvault"), f.Vault.Address)
	require.Len(t, f.Strategies, 3)
	assert.Equal(t, KindLending, f.Strategies[0].Kind)
	assert.Equal(t, uint64(4000), f.Strategies[0].Weight)
	assert.Equal(t, types.Address("money-market"), f.Strategies[0].Address)
	assert.Equal(t, types.ProviderLiquidStake, f.Strategies[1].Providers[0].Kind)
	assert.Equal(t, uint64(5000), f.Strategies[2].Pools[0].AssetWeightBps)

	// Unset parameters fall back to the defaults.
	assert.Equal(t, uint64(60), f.Parameters.RiskTolerance)
	assert.Equal(t, DefaultParameters.RiskFreeBps, f.Parameters.RiskFreeBps)
	assert.Equal(t, DefaultParameters.HistoryCapacity, f.Parameters.HistoryCapacity)

	minimum, err := f.MinimumDepositAmount()
	require.NoError(t, err)
	assert.Equal(t, "1000000", minimum.String())

	seed, err := f.SeedAmount(0)
	require.NoError(t, err)
	assert.Equal(t, "250000000000", seed.String())
}

func TestParseVaultFileDefaults(t *testing.T) {
	f, err := ParseVaultFile([]byte(`
strategies:
  - name: lend
    kind: LENDING
    weight_bps: 10000
    max_allocation_bps: 10000
`))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), f.Asset.Decimals)
	assert.Equal(t, types.Address("vault"), f.Vault.Address)
	assert.Equal(t, KindLending, f.Strategies[0].Kind)
	assert.Equal(t, DefaultParameters.ReserveRatioBps, f.Parameters.ReserveRatioBps)

	cfg := f.Parameters.ManagerConfig()
	assert.Equal(t, DefaultParameters.RebalanceThresholdBps, cfg.RebalanceThresholdBps)
	assert.Equal(t, DefaultParameters.MaxSingleProviderBps, f.Parameters.PooledOptions().MaxSingleProviderBps)

	minimum, err := f.MinimumDepositAmount()
	require.NoError(t, err)
	assert.True(t, minimum.IsZero())
}

func TestParseVaultFileRejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `
strategies:
  - {name: a, kind: options, weight_bps: 1, max_allocation_bps: 100}`,
		"zero weight": `
strategies:
  - {name: a, kind: lending, weight_bps: 0, max_allocation_bps: 100}`,
		"duplicate": `
strategies:
  - {name: a, kind: lending, weight_bps: 1, max_allocation_bps: 100}
  - {name: a, kind: lending, weight_bps: 1, max_allocation_bps: 100}`,
		"staking without providers": `
strategies:
  - {name: a, kind: staking, weight_bps: 1, max_allocation_bps: 100}`,
		"pool weight": `
strategies:
  - name: a
    kind: liquidity
    weight_bps: 1
    max_allocation_bps: 100
    pools: [{name: p, asset_weight_bps: 10000}]`,
		"bad seed": `
seed_deposits:
  - {user: alice, amount: "-5"}`,
		"bad minimum": `
vault: {minimum_deposit: "lots"}`,
		"threshold": `
parameters: {rebalance_threshold_bps: 20000}`,
		"reserve": `
parameters: {reserve_ratio_bps: 10001}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVaultFile([]byte(doc))
			assert.ErrorIs(t, err, types.ErrInvalidParameter)
		})
	}

	_, err := ParseVaultFile([]byte("strategies: {"))
	assert.ErrorContains(t, err, "parse vault file")
}
