package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/adapter"
	"github.com/elys-network/yieldvault/internal/config"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/manager"
	"github.com/elys-network/yieldvault/internal/simulations"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/vault"
)

// deployment is a vault wired to simulated yield sources.
type deployment struct {
	token *simulations.Token
	vault *vault.Vault
}

// bootstrap builds the vault described by file with owner as the owner of every component.
func bootstrap(ctx context.Context, file *config.VaultFile, owner types.Address, emitter events.Emitter, log zerolog.Logger) (*deployment, error) {
	token := simulations.NewToken(file.Asset.Symbol, file.Asset.Decimals)

	mgr, err := manager.New(owner, file.Parameters.ManagerConfig(), emitter, log.With().Str("component", "strategy_manager").Logger())
	if err != nil {
		return nil, fmt.Errorf("create strategy manager: %w", err)
	}
	minimum, err := file.MinimumDepositAmount()
	if err != nil {
		return nil, err
	}
	v, err := vault.New(vault.Config{
		Address:         file.Vault.Address,
		Owner:           owner,
		Token:           token,
		MinimumDeposit:  minimum,
		ReserveRatioBps: file.Parameters.ReserveRatioBps,
		MaxRebalanceBps: file.Parameters.MaxRebalanceBps,
		Emitter:         emitter,
		Log:             log.With().Str("component", "vault").Logger(),
	}, mgr)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}

	for _, sc := range file.Strategies {
		cfg := adapter.Config{
			Name:    sc.Name,
			Address: sc.Address,
			Vault:   file.Vault.Address,
			Owner:   owner,
			Token:   token,
			Emitter: emitter,
			Log:     log.With().Str("component", "adapter").Str("adapter", sc.Name).Logger(),
		}
		a, err := buildAdapter(ctx, sc, cfg, token, file.Parameters.PooledOptions())
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
		}
		id, err := v.AddStrategy(ctx, owner, sc.StrategyParams, a)
		if err != nil {
			return nil, fmt.Errorf("register strategy %s: %w", sc.Name, err)
		}
		log.Info().Uint64("strategyID", uint64(id)).Str("name", sc.Name).Str("kind", string(sc.Kind)).Msg("Strategy registered")
	}

	for i, seed := range file.SeedDeposits {
		amount, err := file.SeedAmount(i)
		if err != nil {
			return nil, err
		}
		token.Mint(seed.User, amount)
		if err := token.Approve(ctx, seed.User, v.Address(), amount); err != nil {
			return nil, err
		}
		if _, err := v.Deposit(ctx, seed.User, amount); err != nil {
			return nil, fmt.Errorf("seed deposit for %s: %w", seed.User, err)
		}
	}

	return &deployment{token: token, vault: v}, nil
}

func buildAdapter(ctx context.Context, sc config.StrategyConfig, cfg adapter.Config, token *simulations.Token, options adapter.PooledOptions) (adapter.Strategy, error) {
	switch sc.Kind {
	case config.KindLending:
		market := simulations.NewLendingMarket(sc.Address+"-market", token, sc.RateBps)
		return adapter.NewLendingAdapter(cfg, market)

	case config.KindStaking:
		a, err := adapter.NewStakingAdapter(cfg, options)
		if err != nil {
			return nil, err
		}
		for _, p := range sc.Providers {
			provider := simulations.NewStakingProvider(types.Address(p.Name), token, p.APYBps)
			if _, err := a.AddProvider(ctx, cfg.Owner, provider, p.APYBps, p.RiskScore, p.Kind); err != nil {
				return nil, fmt.Errorf("provider %s: %w", p.Name, err)
			}
		}
		return a, nil

	case config.KindLiquidity:
		a, err := adapter.NewLiquidityAdapter(cfg, options)
		if err != nil {
			return nil, err
		}
		for _, p := range sc.Pools {
			pool := simulations.NewLiquidityPool(types.Address(p.Name), token, p.AssetWeightBps, p.APYBps)
			if _, err := a.AddPool(ctx, cfg.Owner, pool, p.APYBps, p.RiskScore, p.Kind); err != nil {
				return nil, fmt.Errorf("pool %s: %w", p.Name, err)
			}
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown strategy kind %q", sc.Kind)
}
