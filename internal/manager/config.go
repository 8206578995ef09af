package manager

import (
	"errors"
	"fmt"

	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

// Config is the engine configuration. It is only changed through the validated setters on
// StrategyManager and is passed by value into the allocation routines.
type Config struct {
	RiskTolerance         uint64 `json:"risk_tolerance" yaml:"risk_tolerance"`
	RebalanceThresholdBps uint64 `json:"rebalance_threshold_bps" yaml:"rebalance_threshold_bps"`
	RiskFreeBps           uint64 `json:"risk_free_bps" yaml:"risk_free_bps"`
	HistoryCapacity       int    `json:"history_capacity" yaml:"history_capacity"`
	MaxActiveStrategies   int    `json:"max_active_strategies" yaml:"max_active_strategies"`
}

const (
	DefaultRiskTolerance         = 50
	DefaultRebalanceThresholdBps = 500
	DefaultRiskFreeBps           = 200
	DefaultMaxActiveStrategies   = 20
)

func DefaultConfig() Config {
	return Config{
		RiskTolerance:         DefaultRiskTolerance,
		RebalanceThresholdBps: DefaultRebalanceThresholdBps,
		RiskFreeBps:           DefaultRiskFreeBps,
		HistoryCapacity:       types.DefaultHistoryCapacity,
		MaxActiveStrategies:   DefaultMaxActiveStrategies,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.RiskTolerance > types.MaxRiskScore {
		errs = append(errs, fmt.Errorf("risk tolerance %d exceeds %d", c.RiskTolerance, types.MaxRiskScore))
	}
	if c.RebalanceThresholdBps == 0 || c.RebalanceThresholdBps > utils.BpsDenominator {
		errs = append(errs, fmt.Errorf("rebalance threshold %d bps outside 1..%d", c.RebalanceThresholdBps, utils.BpsDenominator))
	}
	if c.HistoryCapacity < 2 {
		errs = append(errs, errors.New("history capacity must be at least 2"))
	}
	if c.MaxActiveStrategies <= 0 {
		errs = append(errs, errors.New("max active strategies must be positive"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{types.ErrInvalidParameter}, errs...)...)
	}
	return nil
}
