/*

This file contains the results of the batched vault operations and the snapshot of one maintenance cycle.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// StrategyFailure records one adapter whose call failed inside a batch.
type StrategyFailure struct {
	StrategyID StrategyID `json:"strategy_id"`
	Name       string     `json:"name"`
	Operation  string     `json:"operation"`
	Error      string     `json:"error"`
}

type MoveDirection string

const (
	MoveDeposit  MoveDirection = "DEPOSIT"
	MoveWithdraw MoveDirection = "WITHDRAW"
)

// StrategyMove is one transfer of capital between the vault and an adapter.
type StrategyMove struct {
	StrategyID StrategyID    `json:"strategy_id"`
	Direction  MoveDirection `json:"direction"`
	Amount     sdkmath.Int   `json:"amount"`
}

type StrategyYield struct {
	StrategyID StrategyID  `json:"strategy_id"`
	Yield      sdkmath.Int `json:"yield"`
	APY        uint64      `json:"apy_bps"`
}

type HarvestReport struct {
	TotalYield sdkmath.Int       `json:"total_yield"`
	Yields     []StrategyYield   `json:"yields"`
	Failures   []StrategyFailure `json:"failures,omitempty"`
}

type AllocationReport struct {
	Deployed sdkmath.Int       `json:"deployed"`
	Moves    []StrategyMove    `json:"moves"`
	Failures []StrategyFailure `json:"failures,omitempty"`
}

type RebalanceReport struct {
	Executed bool              `json:"executed"`
	Moves    []StrategyMove    `json:"moves"`
	Failures []StrategyFailure `json:"failures,omitempty"`
}

// VaultSummary is the aggregate view of the vault ledger.
type VaultSummary struct {
	Asset           string            `json:"asset"`
	TotalAssets     sdkmath.Int       `json:"total_assets"`
	TotalAssetsUnit float64           `json:"total_assets_units"`
	Reserve         sdkmath.Int       `json:"reserve"`
	TotalDeposits   sdkmath.Int       `json:"total_deposits"`
	TotalShares     sdkmath.Int       `json:"total_shares"`
	SharePrice      sdkmath.LegacyDec `json:"share_price"`
	ReserveRatioBps uint64            `json:"reserve_ratio_bps"`
	StrategyCount   int               `json:"strategy_count"`
	Depositors      int               `json:"depositors"`
}

type StrategyAllocation struct {
	StrategyID  StrategyID  `json:"strategy_id"`
	Name        string      `json:"name"`
	TotalAssets sdkmath.Int `json:"total_assets"`
	APY         uint64      `json:"apy_bps"`
}

// CycleSnapshot is persisted once per maintenance cycle.
type CycleSnapshot struct {
	CycleNumber       uint64               `json:"cycle_number"`
	CycleID           string               `json:"cycle_id"`
	Timestamp         time.Time            `json:"timestamp"`
	Duration          time.Duration        `json:"duration"`
	TotalAssetsBefore sdkmath.Int          `json:"total_assets_before"`
	TotalAssetsAfter  sdkmath.Int          `json:"total_assets_after"`
	Reserve           sdkmath.Int          `json:"reserve"`
	TotalShares       sdkmath.Int          `json:"total_shares"`
	HarvestYield      sdkmath.Int          `json:"harvest_yield"`
	Deployed          sdkmath.Int          `json:"deployed"`
	Rebalanced        bool                 `json:"rebalanced"`
	Moves             []StrategyMove       `json:"moves"`
	Failures          []StrategyFailure    `json:"failures"`
	Allocations       []StrategyAllocation `json:"allocations"`
	Error             string               `json:"error,omitempty"`
}
