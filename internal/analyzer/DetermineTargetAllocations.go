/*

This file contains the bounded proportional distribution used to split an amount across strategies,
or across the providers of one adapter.

The result always sums exactly to the requested total. When the bounds are feasible every entry stays
within them; when they are not, the policy in DetermineTargetAllocations decides who absorbs the gap.

*/

package analyzer

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

var allocatorLogger = logger.GetForComponent("allocator")

// Bound is an inclusive [Min, Max] range for one entry of a distribution.
type Bound struct {
	Min sdkmath.Int
	Max sdkmath.Int
}

// ProportionalSplit splits total in proportion to weights. Each share is floored and the leftover
// units go to the largest fractional remainders, ties to the lower index. If every weight is zero
// the total is split equally.
func ProportionalSplit(total sdkmath.Int, weights []sdkmath.Int) []sdkmath.Int {
	n := len(weights)
	out := make([]sdkmath.Int, n)
	if n == 0 {
		return out
	}
	if total.IsNil() || !total.IsPositive() {
		for i := range out {
			out[i] = sdkmath.ZeroInt()
		}
		return out
	}

	effective := make([]sdkmath.Int, n)
	weightSum := sdkmath.ZeroInt()
	for i, w := range weights {
		if w.IsNil() || w.IsNegative() {
			w = sdkmath.ZeroInt()
		}
		effective[i] = w
		weightSum = weightSum.Add(w)
	}
	if weightSum.IsZero() {
		for i := range effective {
			effective[i] = sdkmath.OneInt()
		}
		weightSum = sdkmath.NewInt(int64(n))
	}

	type remainder struct {
		index int
		rem   sdkmath.Int
	}
	remainders := make([]remainder, n)
	assigned := sdkmath.ZeroInt()
	for i, w := range effective {
		product := total.Mul(w)
		out[i] = product.Quo(weightSum)
		remainders[i] = remainder{index: i, rem: product.Mod(weightSum)}
		assigned = assigned.Add(out[i])
	}

	leftover := total.Sub(assigned)
	if leftover.IsZero() {
		return out
	}
	sort.SliceStable(remainders, func(a, b int) bool {
		return remainders[a].rem.GT(remainders[b].rem)
	})
	// leftover < n, so one unit per entry is enough
	for k := 0; leftover.IsPositive() && k < n; k++ {
		i := remainders[k].index
		out[i] = out[i].AddRaw(1)
		leftover = leftover.SubRaw(1)
	}
	return out
}

func validateBounds(weights []sdkmath.Int, bounds []Bound) error {
	if len(weights) != len(bounds) {
		return fmt.Errorf("%w: %d weights for %d bounds", types.ErrInvalidParameter, len(weights), len(bounds))
	}
	for i, b := range bounds {
		if b.Min.IsNil() || b.Max.IsNil() {
			return fmt.Errorf("%w: bound %d is nil", types.ErrInvalidParameter, i)
		}
		if b.Min.IsNegative() {
			return fmt.Errorf("%w: bound %d has negative minimum", types.ErrInvalidParameter, i)
		}
		if b.Min.GT(b.Max) {
			return fmt.Errorf("%w: bound %d minimum %s exceeds maximum %s", types.ErrInvalidParameter, i, b.Min, b.Max)
		}
	}
	return nil
}

func sumBounds(bounds []Bound) (sdkmath.Int, sdkmath.Int) {
	sumMin, sumMax := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	for _, b := range bounds {
		sumMin = sumMin.Add(b.Min)
		sumMax = sumMax.Add(b.Max)
	}
	return sumMin, sumMax
}

// WaterFill distributes total in proportion to weights while keeping every entry inside its bound.
// Entries above their maximum are locked at the maximum first; otherwise entries pushed below their
// minimum are locked at the minimum. The freed or consumed amount is redistributed over the entries
// still unlocked until no entry violates its bound. Returns ErrAllocationInfeasible when the bounds
// cannot hold total.
func WaterFill(total sdkmath.Int, weights []sdkmath.Int, bounds []Bound) ([]sdkmath.Int, error) {
	if err := validateBounds(weights, bounds); err != nil {
		return nil, err
	}
	if total.IsNil() || total.IsNegative() {
		return nil, fmt.Errorf("%w: total must be non-negative", types.ErrInvalidAmount)
	}
	n := len(weights)
	if n == 0 {
		if total.IsZero() {
			return []sdkmath.Int{}, nil
		}
		return nil, types.ErrAllocationInfeasible
	}

	sumMin, sumMax := sumBounds(bounds)
	if sumMin.GT(total) || sumMax.LT(total) {
		return nil, fmt.Errorf("%w: total %s outside [%s, %s]", types.ErrAllocationInfeasible, total, sumMin, sumMax)
	}

	allocations := make([]sdkmath.Int, n)
	locked := make([]bool, n)

	// Each pass locks at least one entry, so n+1 passes always converge.
	for iteration := 0; iteration <= n; iteration++ {
		remaining := total
		unlocked := make([]int, 0, n)
		for i := 0; i < n; i++ {
			if locked[i] {
				remaining = remaining.Sub(allocations[i])
			} else {
				unlocked = append(unlocked, i)
			}
		}
		if len(unlocked) == 0 {
			break
		}
		if remaining.IsNegative() {
			remaining = sdkmath.ZeroInt()
		}

		unlockedWeights := make([]sdkmath.Int, len(unlocked))
		for k, i := range unlocked {
			unlockedWeights[k] = weights[i]
		}
		split := ProportionalSplit(remaining, unlockedWeights)
		for k, i := range unlocked {
			allocations[i] = split[k]
		}

		var belowMin, aboveMax []int
		for _, i := range unlocked {
			if allocations[i].LT(bounds[i].Min) {
				belowMin = append(belowMin, i)
			} else if allocations[i].GT(bounds[i].Max) {
				aboveMax = append(aboveMax, i)
			}
		}
		if len(belowMin) == 0 && len(aboveMax) == 0 {
			break
		}

		if len(aboveMax) > 0 {
			for _, i := range aboveMax {
				allocations[i] = bounds[i].Max
				locked[i] = true
			}
			belowMin = nil
		} else {
			for _, i := range belowMin {
				allocations[i] = bounds[i].Min
				locked[i] = true
			}
		}
		allocatorLogger.Debug().
			Int("iteration", iteration).
			Int("lockedAtMin", len(belowMin)).
			Int("lockedAtMax", len(aboveMax)).
			Msg("Locked allocations at their bounds")
	}

	repairSum(total, allocations, weights, bounds)
	return allocations, nil
}

// repairSum clamps every entry into its bound and then moves the difference to or from the entries
// with room, heaviest weight first, so the allocations sum to total. Assumes feasible bounds.
func repairSum(total sdkmath.Int, allocations []sdkmath.Int, weights []sdkmath.Int, bounds []Bound) {
	sum := sdkmath.ZeroInt()
	for i := range allocations {
		allocations[i] = sdkmath.MaxInt(bounds[i].Min, sdkmath.MinInt(bounds[i].Max, allocations[i]))
		sum = sum.Add(allocations[i])
	}
	diff := total.Sub(sum)
	if diff.IsZero() {
		return
	}

	order := make([]int, len(allocations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		wa, wb := weights[order[a]], weights[order[b]]
		if wa.IsNil() {
			return false
		}
		if wb.IsNil() {
			return true
		}
		return wa.GT(wb)
	})

	for _, i := range order {
		if diff.IsZero() {
			return
		}
		if diff.IsPositive() {
			room := bounds[i].Max.Sub(allocations[i])
			step := sdkmath.MinInt(room, diff)
			allocations[i] = allocations[i].Add(step)
			diff = diff.Sub(step)
		} else {
			slack := allocations[i].Sub(bounds[i].Min)
			step := sdkmath.MinInt(slack, diff.Neg())
			allocations[i] = allocations[i].Sub(step)
			diff = diff.Add(step)
		}
	}
}

// DetermineTargetAllocations always returns a vector summing exactly to total:
//   - feasible bounds: WaterFill over weights
//   - sum of minimums above total: total split in proportion to the minimums
//   - sum of maximums below total: every entry at its maximum, the rest split by weights
func DetermineTargetAllocations(total sdkmath.Int, weights []sdkmath.Int, bounds []Bound) ([]sdkmath.Int, error) {
	if err := validateBounds(weights, bounds); err != nil {
		return nil, err
	}
	if total.IsNil() || total.IsNegative() {
		return nil, fmt.Errorf("%w: total must be non-negative", types.ErrInvalidAmount)
	}
	if len(weights) == 0 {
		return []sdkmath.Int{}, nil
	}

	sumMin, sumMax := sumBounds(bounds)
	switch {
	case sumMin.GT(total):
		allocatorLogger.Warn().
			Str("total", total.String()).
			Str("sumMin", sumMin.String()).
			Msg("Minimum allocations exceed total, splitting in proportion to minimums")
		mins := make([]sdkmath.Int, len(bounds))
		for i, b := range bounds {
			mins[i] = b.Min
		}
		return ProportionalSplit(total, mins), nil

	case sumMax.LT(total):
		allocatorLogger.Warn().
			Str("total", total.String()).
			Str("sumMax", sumMax.String()).
			Msg("Maximum allocations below total, spreading the excess by weight")
		extra := ProportionalSplit(total.Sub(sumMax), weights)
		out := make([]sdkmath.Int, len(bounds))
		for i, b := range bounds {
			out[i] = b.Max.Add(extra[i])
		}
		return out, nil
	}

	allocations, err := WaterFill(total, weights, bounds)
	if err != nil {
		return nil, errors.Join(errors.New("bounded distribution failed"), err)
	}
	return allocations, nil
}
