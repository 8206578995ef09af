/*

This file contains the sentinel errors shared by the allocation engine, the adapters and the vault.

*/

package types

import "errors"

var (
	// Validation
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrBelowMinimum     = errors.New("amount below minimum deposit")

	// Authorization
	ErrUnauthorized = errors.New("unauthorized caller")

	// Insufficient balance
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// External protocol failures
	ErrExternalCall = errors.New("external call failed")

	// Lookups
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrProviderNotFound = errors.New("provider not found")

	ErrAllocationInfeasible = errors.New("allocation constraints are infeasible")
	ErrRegistryFull         = errors.New("active set is full")
)
