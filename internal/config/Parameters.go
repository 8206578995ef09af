/*

This file contains the default vault and engine parameters. A vault file may override any of them.

*/

package config

import (
	"github.com/elys-network/yieldvault/internal/adapter"
	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/vault"
)

// Parameters tunes the vault, its allocation engine and the multi-provider adapters.
type Parameters struct {
	ReserveRatioBps       uint64 `yaml:"reserve_ratio_bps"`
	MaxRebalanceBps       uint64 `yaml:"max_rebalance_bps"`
	RiskTolerance         uint64 `yaml:"risk_tolerance"`
	RebalanceThresholdBps uint64 `yaml:"rebalance_threshold_bps"`
	RiskFreeBps           uint64 `yaml:"risk_free_bps"`
	HistoryCapacity       int    `yaml:"history_capacity"`
	MaxActiveStrategies   int    `yaml:"max_active_strategies"`
	MaxSingleProviderBps  uint64 `yaml:"max_single_provider_bps"`
	AdapterRiskTolerance  uint64 `yaml:"adapter_risk_tolerance"`
}

// DefaultParameters is used for every field a vault file leaves unset.
var DefaultParameters = Parameters{
	ReserveRatioBps: vault.DefaultReserveRatioBps, // 10% stays liquid for withdrawals.
	MaxRebalanceBps: 0,                            // no per-cycle withdrawal cap

	RiskTolerance:         manager.DefaultRiskTolerance,
	RebalanceThresholdBps: manager.DefaultRebalanceThresholdBps, // 5% drift
	RiskFreeBps:           manager.DefaultRiskFreeBps,
	HistoryCapacity:       types.DefaultHistoryCapacity,
	MaxActiveStrategies:   manager.DefaultMaxActiveStrategies,

	MaxSingleProviderBps: 4000,
	AdapterRiskTolerance: adapter.DefaultAdapterRiskTolerance,
}

// withDefaults fills zero fields from DefaultParameters. MaxRebalanceBps keeps zero as "uncapped".
func (p Parameters) withDefaults() Parameters {
	d := DefaultParameters
	if p.ReserveRatioBps == 0 {
		p.ReserveRatioBps = d.ReserveRatioBps
	}
	if p.RiskTolerance == 0 {
		p.RiskTolerance = d.RiskTolerance
	}
	if p.RebalanceThresholdBps == 0 {
		p.RebalanceThresholdBps = d.RebalanceThresholdBps
	}
	if p.RiskFreeBps == 0 {
		p.RiskFreeBps = d.RiskFreeBps
	}
	if p.HistoryCapacity == 0 {
		p.HistoryCapacity = d.HistoryCapacity
	}
	if p.MaxActiveStrategies == 0 {
		p.MaxActiveStrategies = d.MaxActiveStrategies
	}
	if p.MaxSingleProviderBps == 0 {
		p.MaxSingleProviderBps = d.MaxSingleProviderBps
	}
	if p.AdapterRiskTolerance == 0 {
		p.AdapterRiskTolerance = d.AdapterRiskTolerance
	}
	return p
}

// ManagerConfig is the allocation engine configuration these parameters describe.
func (p Parameters) ManagerConfig() manager.Config {
	return manager.Config{
		RiskTolerance:         p.RiskTolerance,
		RebalanceThresholdBps: p.RebalanceThresholdBps,
		RiskFreeBps:           p.RiskFreeBps,
		HistoryCapacity:       p.HistoryCapacity,
		MaxActiveStrategies:   p.MaxActiveStrategies,
	}
}

// PooledOptions configures the staking and liquidity adapters.
func (p Parameters) PooledOptions() adapter.PooledOptions {
	return adapter.PooledOptions{
		RiskTolerance:        p.AdapterRiskTolerance,
		MaxSingleProviderBps: p.MaxSingleProviderBps,
	}
}
