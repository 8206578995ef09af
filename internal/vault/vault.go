/*

This file contains the vault coordinator: it holds user deposits and shares, keeps a liquid reserve,
and routes capital to the registered strategy adapters.

Shares are minted at amount * totalShares / totalAssets. The very first deposit mints at a fixed scale
that lifts the asset's decimals to an 18 decimal share unit.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/adapter"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/planner"
	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

const (
	ShareDecimals          = 18
	DefaultReserveRatioBps = 1000
)

// Config describes one vault deployment.
type Config struct {
	Address         types.Address
	Owner           types.Address
	Token           protocol.Token
	MinimumDeposit  sdkmath.Int // Defaults to one whole token
	ReserveRatioBps uint64
	// MaxRebalanceBps caps what one rebalance may withdraw, as a share of invested capital; 0 disables it.
	MaxRebalanceBps uint64
	Emitter         events.Emitter
	Log             zerolog.Logger
}

type Vault struct {
	mu sync.Mutex

	address types.Address
	owner   types.Address
	token   protocol.Token

	manager  *manager.StrategyManager
	adapters map[types.StrategyID]adapter.Strategy

	minimumDeposit  sdkmath.Int
	reserveRatioBps uint64
	limits          planner.Limits

	totalDeposits sdkmath.Int
	totalShares   sdkmath.Int
	deposits      map[types.Address]sdkmath.Int
	shares        map[types.Address]sdkmath.Int

	// lastKnown holds each adapter's last successful TotalAssets reading.
	lastKnown map[types.StrategyID]sdkmath.Int

	emitter events.Emitter
	log     zerolog.Logger
}

// New creates a vault over mgr and registers the vault as the engine's APY operator. The vault owner
// must own the engine.
func New(cfg Config, mgr *manager.StrategyManager) (*Vault, error) {
	var errs []error
	if cfg.Address == "" || cfg.Owner == "" {
		errs = append(errs, errors.New("vault and owner addresses are required"))
	}
	if cfg.Token == nil {
		errs = append(errs, errors.New("token is required"))
	}
	if mgr == nil {
		errs = append(errs, errors.New("strategy manager is required"))
	}
	if cfg.ReserveRatioBps > utils.BpsDenominator {
		errs = append(errs, fmt.Errorf("reserve ratio %d bps exceeds 10000", cfg.ReserveRatioBps))
	}
	if cfg.MaxRebalanceBps > utils.BpsDenominator {
		errs = append(errs, fmt.Errorf("rebalance cap %d bps exceeds 10000", cfg.MaxRebalanceBps))
	}
	if !cfg.MinimumDeposit.IsNil() && cfg.MinimumDeposit.IsNegative() {
		errs = append(errs, errors.New("minimum deposit must not be negative"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(append([]error{types.ErrInvalidParameter}, errs...)...)
	}

	if err := mgr.SetOperator(cfg.Owner, cfg.Address); err != nil {
		return nil, fmt.Errorf("register vault with strategy manager: %w", err)
	}

	minimum := cfg.MinimumDeposit
	if minimum.IsNil() || minimum.IsZero() {
		minimum = utils.Pow10(uint64(cfg.Token.Decimals()))
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}

	v := &Vault{
		address:         cfg.Address,
		owner:           cfg.Owner,
		token:           cfg.Token,
		manager:         mgr,
		adapters:        make(map[types.StrategyID]adapter.Strategy),
		minimumDeposit:  minimum,
		reserveRatioBps: cfg.ReserveRatioBps,
		limits:          planner.Limits{MaxWithdrawBps: cfg.MaxRebalanceBps},
		totalDeposits:   sdkmath.ZeroInt(),
		totalShares:     sdkmath.ZeroInt(),
		deposits:        make(map[types.Address]sdkmath.Int),
		shares:          make(map[types.Address]sdkmath.Int),
		lastKnown:       make(map[types.StrategyID]sdkmath.Int),
		emitter:         emitter,
		log:             cfg.Log.With().Str("vault", string(cfg.Address)).Logger(),
	}
	v.log.Info().
		Str("asset", cfg.Token.Symbol()).
		Str("minimumDeposit", minimum.String()).
		Uint64("reserveRatioBps", cfg.ReserveRatioBps).
		Msg("Vault created")
	return v, nil
}

func (v *Vault) Address() types.Address { return v.address }
func (v *Vault) Owner() types.Address   { return v.owner }

func (v *Vault) Manager() *manager.StrategyManager { return v.manager }

func (v *Vault) onlyOwner(caller types.Address) error {
	if caller != v.owner {
		return fmt.Errorf("%w: %s is not the owner", types.ErrUnauthorized, caller)
	}
	return nil
}

func lookup(m map[types.Address]sdkmath.Int, key types.Address) sdkmath.Int {
	if v, ok := m[key]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// firstDepositScale lifts an amount with the asset's decimals to the 18 decimal share unit.
func (v *Vault) firstDepositScale() sdkmath.Int {
	decimals := uint64(v.token.Decimals())
	if decimals >= ShareDecimals {
		return sdkmath.OneInt()
	}
	return utils.Pow10(ShareDecimals - decimals)
}

func (v *Vault) reserveLocked(ctx context.Context) (sdkmath.Int, error) {
	balance, err := v.token.BalanceOf(ctx, v.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: reserve balance: %w", types.ErrExternalCall, err)
	}
	return balance, nil
}

// holdingsLocked reads every adapter's assets. An adapter that cannot answer is counted at its last
// known value and reported in failures.
func (v *Vault) holdingsLocked(ctx context.Context) (map[types.StrategyID]sdkmath.Int, []types.StrategyFailure) {
	holdings := make(map[types.StrategyID]sdkmath.Int, len(v.adapters))
	var failures []types.StrategyFailure
	for _, rec := range v.manager.Strategies() {
		a, ok := v.adapters[rec.ID]
		if !ok {
			continue
		}
		assets, err := a.TotalAssets(ctx)
		if err != nil {
			cached := lookupID(v.lastKnown, rec.ID)
			v.log.Warn().Err(err).Uint64("strategyID", uint64(rec.ID)).Str("cached", cached.String()).
				Msg("Strategy assets unavailable, using last known value")
			failures = append(failures, failure(rec, "total_assets", err))
			holdings[rec.ID] = cached
			continue
		}
		v.lastKnown[rec.ID] = assets
		holdings[rec.ID] = assets
	}
	return holdings, failures
}

// track moves an adapter's last known assets by delta, so a later failed reading still reflects the
// capital the vault has placed there.
func (v *Vault) track(id types.StrategyID, delta sdkmath.Int) {
	next := lookupID(v.lastKnown, id).Add(delta)
	if next.IsNegative() {
		next = sdkmath.ZeroInt()
	}
	v.lastKnown[id] = next
}

func lookupID(m map[types.StrategyID]sdkmath.Int, id types.StrategyID) sdkmath.Int {
	if v, ok := m[id]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (v *Vault) totalAssetsLocked(ctx context.Context) (sdkmath.Int, error) {
	reserve, err := v.reserveLocked(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	holdings, _ := v.holdingsLocked(ctx)
	total := reserve
	for _, amt := range holdings {
		total = total.Add(amt)
	}
	return total, nil
}

// TotalAssets is the reserve plus everything held by the strategies.
func (v *Vault) TotalAssets(ctx context.Context) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssetsLocked(ctx)
}

// Reserve is the vault's own token balance.
func (v *Vault) Reserve(ctx context.Context) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reserveLocked(ctx)
}

// Deposit pulls amount from user, who must have approved the vault, and mints shares.
func (v *Vault) Deposit(ctx context.Context, user types.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit must be positive", types.ErrInvalidAmount)
	}
	if amount.LT(v.minimumDeposit) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s below minimum %s", types.ErrBelowMinimum, amount, v.minimumDeposit)
	}

	totalAssets, err := v.totalAssetsLocked(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	var minted sdkmath.Int
	if v.totalShares.IsZero() || totalAssets.IsZero() {
		minted = amount.Mul(v.firstDepositScale())
	} else {
		minted = amount.Mul(v.totalShares).Quo(totalAssets)
	}
	if !minted.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit of %s mints no shares", types.ErrInvalidAmount, amount)
	}

	if err := v.token.TransferFrom(ctx, v.address, user, v.address, amount); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: pull deposit: %w", types.ErrExternalCall, err)
	}

	v.deposits[user] = lookup(v.deposits, user).Add(amount)
	v.shares[user] = lookup(v.shares, user).Add(minted)
	v.totalDeposits = v.totalDeposits.Add(amount)
	v.totalShares = v.totalShares.Add(minted)

	v.log.Info().Str("user", string(user)).Str("amount", amount.String()).Str("shares", minted.String()).Msg("Deposit")
	v.emitter.Emit(&events.DepositData{User: user, Amount: amount, Shares: minted})
	return minted, nil
}

// Withdraw burns shares and pays out their value, from the reserve first and from the strategies
// only for the remainder.
func (v *Vault) Withdraw(ctx context.Context, user types.Address, shares sdkmath.Int) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: shares must be positive", types.ErrInvalidAmount)
	}
	held := lookup(v.shares, user)
	if shares.GT(held) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s holds %s, requested %s", types.ErrInsufficientShares, user, held, shares)
	}

	totalAssets, err := v.totalAssetsLocked(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	amount := shares.Mul(totalAssets).Quo(v.totalShares)

	reserve, err := v.reserveLocked(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if reserve.LT(amount) {
		v.pullFromStrategiesLocked(ctx, amount.Sub(reserve))
		if reserve, err = v.reserveLocked(ctx); err != nil {
			return sdkmath.ZeroInt(), err
		}
		if reserve.LT(amount) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: need %s, could free %s", types.ErrInsufficientLiquidity, amount, reserve)
		}
	}

	if amount.IsPositive() {
		if err := v.token.Transfer(ctx, v.address, user, amount); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: pay withdrawal: %w", types.ErrExternalCall, err)
		}
	}

	principal := lookup(v.deposits, user)
	burned := principal
	if shares.LT(held) {
		burned = principal.Mul(shares).Quo(held)
	}
	v.deposits[user] = principal.Sub(burned)
	v.shares[user] = held.Sub(shares)
	v.totalDeposits = v.totalDeposits.Sub(burned)
	v.totalShares = v.totalShares.Sub(shares)
	if v.shares[user].IsZero() {
		delete(v.shares, user)
		delete(v.deposits, user)
	}

	v.log.Info().Str("user", string(user)).Str("amount", amount.String()).Str("shares", shares.String()).Msg("Withdraw")
	v.emitter.Emit(&events.WithdrawData{User: user, Amount: amount, Shares: shares})
	return amount, nil
}

// pullFromStrategiesLocked asks the strategies, largest holding first, for up to need. A strategy that
// fails is skipped.
func (v *Vault) pullFromStrategiesLocked(ctx context.Context, need sdkmath.Int) {
	holdings, _ := v.holdingsLocked(ctx)
	order := v.byHoldingDesc(holdings)
	for _, id := range order {
		if !need.IsPositive() {
			return
		}
		want := sdkmath.MinInt(need, holdings[id])
		if !want.IsPositive() {
			continue
		}
		got, err := v.adapters[id].Withdraw(ctx, v.address, want)
		if err != nil {
			v.log.Error().Err(err).Uint64("strategyID", uint64(id)).Msg("Strategy withdrawal failed, trying the next one")
			v.reportFailure(id, "withdraw", err)
			continue
		}
		v.track(id, got.Neg())
		need = need.Sub(got)
	}
}

// BalanceOf returns the principal user has deposited and not yet withdrawn.
func (v *Vault) BalanceOf(user types.Address) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lookup(v.deposits, user)
}

func (v *Vault) SharesOf(user types.Address) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return lookup(v.shares, user)
}

func (v *Vault) TotalDeposits() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalDeposits
}

func (v *Vault) TotalShares() sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalShares
}

func (v *Vault) MinimumDeposit() sdkmath.Int { return v.minimumDeposit }

// SetReserveRatio sets the share of total assets kept liquid, 0..10000 bps.
func (v *Vault) SetReserveRatio(caller types.Address, bps uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.onlyOwner(caller); err != nil {
		return err
	}
	if bps > utils.BpsDenominator {
		return errors.Join(types.ErrInvalidParameter, fmt.Errorf("reserve ratio %d bps exceeds 10000", bps))
	}
	old := v.reserveRatioBps
	v.reserveRatioBps = bps
	v.emitter.Emit(&events.ParameterUpdatedData{Type: events.ReserveRatioUpdated, Old: old, New: bps})
	return nil
}

func (v *Vault) ReserveRatioBps() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reserveRatioBps
}

// Summary aggregates the vault ledger. The share price is asset units per whole share.
func (v *Vault) Summary(ctx context.Context) (types.VaultSummary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	reserve, err := v.reserveLocked(ctx)
	if err != nil {
		return types.VaultSummary{}, err
	}
	holdings, _ := v.holdingsLocked(ctx)
	total := reserve
	for _, amt := range holdings {
		total = total.Add(amt)
	}

	price := sdkmath.LegacyOneDec()
	if v.totalShares.IsPositive() {
		price = sdkmath.LegacyNewDecFromInt(total.Mul(v.firstDepositScale())).QuoInt(v.totalShares)
	}
	units, err := utils.SDKIntToFloat64(total, int(v.token.Decimals()))
	if err != nil {
		v.log.Warn().Err(err).Str("totalAssets", total.String()).Msg("Failed to convert total assets to whole units")
	}
	return types.VaultSummary{
		Asset:           v.token.Symbol(),
		TotalAssets:     total,
		TotalAssetsUnit: units,
		Reserve:         reserve,
		TotalDeposits:   v.totalDeposits,
		TotalShares:     v.totalShares,
		SharePrice:      price,
		ReserveRatioBps: v.reserveRatioBps,
		StrategyCount:   len(v.adapters),
		Depositors:      len(v.shares),
	}, nil
}
