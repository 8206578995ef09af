/*

This file contains the fault injection shared by the in-memory protocols. A fault set for an
operation makes every call of that operation fail until it is cleared.

*/

package simulations

import (
	"fmt"
	"sync"

	"github.com/elys-network/yieldvault/internal/types"
)

const (
	OpAll             = "*"
	OpTransfer        = "transfer"
	OpBalance         = "balance"
	OpSupply          = "supply"
	OpRedeem          = "redeem"
	OpRate            = "rate"
	OpStake           = "stake"
	OpUnstake         = "unstake"
	OpClaim           = "claim"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpCollectFees     = "collect_fees"
	OpPoolState       = "pool_state"
)

type Faults struct {
	mu     sync.Mutex
	faults map[string]error
}

// FailOn makes op fail with err. OpAll fails every operation.
func (f *Faults) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.faults == nil {
		f.faults = make(map[string]error)
	}
	f.faults[op] = err
}

func (f *Faults) Clear(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.faults, op)
}

func (f *Faults) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
}

func (f *Faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.faults[op]
	if !ok {
		err, ok = f.faults[OpAll]
	}
	if !ok {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", types.ErrExternalCall, op, err)
}
