/*

This file contains the YAML bootstrap file: the asset, the vault parameters and the strategies to
register at startup. In dry-run mode every strategy is backed by a simulated protocol.

*/

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/types"
)

type StrategyKind string

const (
	KindLending   StrategyKind = "lending"
	KindStaking   StrategyKind = "staking"
	KindLiquidity StrategyKind = "liquidity"
)

type AssetConfig struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

type VaultConfig struct {
	Address types.Address `yaml:"address"`
	// MinimumDeposit is in the asset's smallest unit. Empty means one whole token.
	MinimumDeposit string `yaml:"minimum_deposit"`
}

// ProviderConfig describes a staking provider or a liquidity pool.
type ProviderConfig struct {
	Name      string             `yaml:"name"`
	Kind      types.ProviderKind `yaml:"kind"`
	APYBps    uint64             `yaml:"apy_bps"`
	RiskScore uint64             `yaml:"risk_score"`
	// AssetWeightBps is the vault asset's weight in a pool.
	AssetWeightBps uint64 `yaml:"asset_weight_bps"`
}

type StrategyConfig struct {
	types.StrategyParams `yaml:",inline"`
	Kind                 StrategyKind `yaml:"kind"`
	// RateBps is the supply rate of a lending market.
	RateBps   uint64           `yaml:"rate_bps"`
	Providers []ProviderConfig `yaml:"providers"`
	Pools     []ProviderConfig `yaml:"pools"`
}

type SeedDeposit struct {
	User   types.Address `yaml:"user"`
	Amount string        `yaml:"amount"`
}

// VaultFile is the bootstrap document.
type VaultFile struct {
	Asset        AssetConfig      `yaml:"asset"`
	Vault        VaultConfig      `yaml:"vault"`
	Parameters   Parameters       `yaml:"parameters"`
	Strategies   []StrategyConfig `yaml:"strategies"`
	SeedDeposits []SeedDeposit    `yaml:"seed_deposits"`
}

// LoadVaultFile reads, defaults and validates the bootstrap file at path.
func LoadVaultFile(path string) (*VaultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	return ParseVaultFile(data)
}

func ParseVaultFile(data []byte) (*VaultFile, error) {
	f := &VaultFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *VaultFile) applyDefaults() {
	if f.Asset.Symbol == "" {
		f.Asset.Symbol = "USDC"
	}
	if f.Asset.Decimals == 0 {
		f.Asset.Decimals = 6
	}
	if f.Vault.Address == "" {
		f.Vault.Address = "vault"
	}
	f.Parameters = f.Parameters.withDefaults()
	for i := range f.Strategies {
		s := &f.Strategies[i]
		s.Kind = StrategyKind(strings.ToLower(string(s.Kind)))
		if s.Address == "" {
			s.Address = types.Address(s.Name)
		}
	}
}

// MinimumDepositAmount parses the configured minimum deposit. Zero selects the vault default.
func (f *VaultFile) MinimumDepositAmount() (sdkmath.Int, error) {
	if f.Vault.MinimumDeposit == "" {
		return sdkmath.ZeroInt(), nil
	}
	return parseAmount("minimum_deposit", f.Vault.MinimumDeposit)
}

func parseAmount(field, raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok || v.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(types.ErrInvalidParameter, fmt.Errorf("%s: invalid amount %q", field, raw))
	}
	return v, nil
}

// SeedAmount parses the amount of seed deposit i.
func (f *VaultFile) SeedAmount(i int) (sdkmath.Int, error) {
	return parseAmount(fmt.Sprintf("seed_deposits[%d]", i), f.SeedDeposits[i].Amount)
}

// Validate checks the file without building anything.
func (f *VaultFile) Validate() error {
	var errs []error
	if f.Asset.Decimals > 18 {
		errs = append(errs, fmt.Errorf("asset decimals %d exceed 18", f.Asset.Decimals))
	}
	if _, err := f.MinimumDepositAmount(); err != nil {
		errs = append(errs, err)
	}
	if err := f.Parameters.ManagerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if f.Parameters.ReserveRatioBps > 10_000 || f.Parameters.MaxRebalanceBps > 10_000 {
		errs = append(errs, errors.New("reserve_ratio_bps and max_rebalance_bps must not exceed 10000"))
	}

	names := make(map[string]bool)
	for i, s := range f.Strategies {
		prefix := fmt.Sprintf("strategies[%d] %q", i, s.Name)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("strategies[%d]: name is required", i))
		}
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", prefix))
		}
		names[s.Name] = true
		if err := manager.ValidateParams(s.StrategyParams); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		switch s.Kind {
		case KindLending:
			if len(s.Providers) > 0 || len(s.Pools) > 0 {
				errs = append(errs, fmt.Errorf("%s: lending strategies take rate_bps, not providers or pools", prefix))
			}
		case KindStaking:
			if len(s.Providers) == 0 {
				errs = append(errs, fmt.Errorf("%s: staking strategy needs providers", prefix))
			}
		case KindLiquidity:
			if len(s.Pools) == 0 {
				errs = append(errs, fmt.Errorf("%s: liquidity strategy needs pools", prefix))
			}
			for j, p := range s.Pools {
				if p.AssetWeightBps == 0 || p.AssetWeightBps >= 10_000 {
					errs = append(errs, fmt.Errorf("%s: pools[%d] asset_weight_bps must be within 1..9999", prefix, j))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", prefix, s.Kind))
		}
	}

	for i, d := range f.SeedDeposits {
		if d.User == "" {
			errs = append(errs, fmt.Errorf("seed_deposits[%d]: user is required", i))
		}
		if _, err := f.SeedAmount(i); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{types.ErrInvalidParameter}, errs...)...)
	}
	return nil
}
