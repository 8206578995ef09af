/*

This file contains the typed events emitted by the allocation engine, the adapters and the vault.

*/

package events

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

type EventType string

const (
	Deposit                   EventType = "Deposit"
	Withdraw                  EventType = "Withdraw"
	StrategyAdded             EventType = "StrategyAdded"
	StrategyUpdated           EventType = "StrategyUpdated"
	StrategyDeactivated       EventType = "StrategyDeactivated"
	StrategyReactivated       EventType = "StrategyReactivated"
	StrategyRemoved           EventType = "StrategyRemoved"
	APYUpdated                EventType = "APYUpdated"
	RiskToleranceUpdated      EventType = "RiskToleranceUpdated"
	RebalanceThresholdUpdated EventType = "RebalanceThresholdUpdated"
	ReserveRatioUpdated       EventType = "ReserveRatioUpdated"
	EmergencyStopped          EventType = "EmergencyStopped"
	ProviderAdded             EventType = "ProviderAdded"
	ProviderStatusChanged     EventType = "ProviderStatusChanged"
	ProviderAPYUpdated        EventType = "ProviderAPYUpdated"
	ExchangeRateUpdated       EventType = "ExchangeRateUpdated"
	ProviderRebalanced        EventType = "ProviderRebalanced"
	PoolAdded                 EventType = "PoolAdded"
	PoolRebalanced            EventType = "PoolRebalanced"
	Harvested                 EventType = "Harvested"
	Rebalanced                EventType = "Rebalanced"
	StrategyCallFailed        EventType = "StrategyCallFailed"
	EmergencyWithdrawn        EventType = "EmergencyWithdrawn"
)

// Event is implemented by every event payload.
type Event interface {
	EventType() EventType
}

type DepositData struct {
	User   types.Address `json:"user"`
	Amount sdkmath.Int   `json:"amount"`
	Shares sdkmath.Int   `json:"shares"`
}

func (d *DepositData) EventType() EventType { return Deposit }

type WithdrawData struct {
	User   types.Address `json:"user"`
	Amount sdkmath.Int   `json:"amount"`
	Shares sdkmath.Int   `json:"shares"`
}

func (d *WithdrawData) EventType() EventType { return Withdraw }

// StrategyData is shared by the strategy lifecycle events; Type selects which one.
type StrategyData struct {
	Type             EventType        `json:"-"`
	StrategyID       types.StrategyID `json:"strategy_id"`
	Name             string           `json:"name"`
	Weight           uint64           `json:"weight_bps"`
	RiskScore        uint64           `json:"risk_score"`
	MinAllocationBps uint64           `json:"min_allocation_bps"`
	MaxAllocationBps uint64           `json:"max_allocation_bps"`
}

func (d *StrategyData) EventType() EventType { return d.Type }

type APYUpdatedData struct {
	StrategyID       types.StrategyID `json:"strategy_id"`
	APY              uint64           `json:"apy_bps"`
	PerformanceScore uint64           `json:"performance_score"`
}

func (d *APYUpdatedData) EventType() EventType { return APYUpdated }

// ParameterUpdatedData carries an old/new pair for an owner-set scalar; Type selects which one.
type ParameterUpdatedData struct {
	Type EventType `json:"-"`
	Old  uint64    `json:"old"`
	New  uint64    `json:"new"`
}

func (d *ParameterUpdatedData) EventType() EventType { return d.Type }

type EmergencyStoppedData struct {
	Deactivated int `json:"deactivated"`
}

func (d *EmergencyStoppedData) EventType() EventType { return EmergencyStopped }

type ProviderAddedData struct {
	Adapter    string             `json:"adapter"`
	ProviderID types.ProviderID   `json:"provider_id"`
	Target     types.Address      `json:"target"`
	Kind       types.ProviderKind `json:"kind"`
	APY        uint64             `json:"apy_bps"`
	RiskScore  uint64             `json:"risk_score"`
	IsPool     bool               `json:"is_pool"`
}

func (d *ProviderAddedData) EventType() EventType {
	if d.IsPool {
		return PoolAdded
	}
	return ProviderAdded
}

type ProviderStatusData struct {
	Adapter    string           `json:"adapter"`
	ProviderID types.ProviderID `json:"provider_id"`
	Active     bool             `json:"active"`
}

func (d *ProviderStatusData) EventType() EventType { return ProviderStatusChanged }

type ProviderAPYData struct {
	Adapter    string           `json:"adapter"`
	ProviderID types.ProviderID `json:"provider_id"`
	Old        uint64           `json:"old_apy_bps"`
	New        uint64           `json:"new_apy_bps"`
}

func (d *ProviderAPYData) EventType() EventType { return ProviderAPYUpdated }

type ExchangeRateData struct {
	Adapter    string            `json:"adapter"`
	ProviderID types.ProviderID  `json:"provider_id"`
	Rate       sdkmath.LegacyDec `json:"rate"`
}

func (d *ExchangeRateData) EventType() EventType { return ExchangeRateUpdated }

// ProviderRebalancedData reports the new allocation of every provider or pool of one adapter.
type ProviderRebalancedData struct {
	Adapter     string                      `json:"adapter"`
	Allocations map[types.ProviderID]uint64 `json:"allocations_bps"`
	IsPool      bool                        `json:"is_pool"`
}

func (d *ProviderRebalancedData) EventType() EventType {
	if d.IsPool {
		return PoolRebalanced
	}
	return ProviderRebalanced
}

type HarvestedData struct {
	Source string      `json:"source"`
	Yield  sdkmath.Int `json:"yield"`
}

func (d *HarvestedData) EventType() EventType { return Harvested }

type RebalancedData struct {
	Source string               `json:"source"`
	Moves  []types.StrategyMove `json:"moves,omitempty"`
}

func (d *RebalancedData) EventType() EventType { return Rebalanced }

// StrategyCallFailedData surfaces an adapter failure that a batch operation skipped.
type StrategyCallFailedData struct {
	Failure types.StrategyFailure `json:"failure"`
}

func (d *StrategyCallFailedData) EventType() EventType { return StrategyCallFailed }

type EmergencyWithdrawnData struct {
	Recovered sdkmath.Int `json:"recovered"`
	Failures  int         `json:"failures"`
}

func (d *EmergencyWithdrawnData) EventType() EventType { return EmergencyWithdrawn }
