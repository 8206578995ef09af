/*

This file contains the Strategy capability the vault drives, and the plumbing every adapter shares:
access control, token movements between the vault and the adapter, and event emission.

*/

package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/protocol"
	"github.com/elys-network/yieldvault/internal/types"
)

var ErrNotInitialized = errors.New("adapter has no active providers")

// Strategy wraps one category of yield source behind a uniform capability. Funds-movement calls
// must come from the vault.
type Strategy interface {
	Name() string
	Address() types.Address
	// Deposit pulls amount from the vault, which must have approved the adapter.
	Deposit(ctx context.Context, caller types.Address, amount sdkmath.Int) error
	// Withdraw returns up to amount to the vault and reports what was sent.
	Withdraw(ctx context.Context, caller types.Address, amount sdkmath.Int) (sdkmath.Int, error)
	WithdrawAll(ctx context.Context, caller types.Address) (sdkmath.Int, error)
	// Harvest compounds rewards into the position and reports the realized yield.
	Harvest(ctx context.Context, caller types.Address) (sdkmath.Int, error)
	TotalAssets(ctx context.Context) (sdkmath.Int, error)
	CurrentAPY(ctx context.Context) (uint64, error)
}

// Config is shared by every adapter constructor.
type Config struct {
	Name    string
	Address types.Address
	Vault   types.Address
	Owner   types.Address
	Token   protocol.Token
	Emitter events.Emitter
	Log     zerolog.Logger
}

func (c Config) validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Address == "" || c.Vault == "" || c.Owner == "" {
		errs = append(errs, errors.New("adapter, vault and owner addresses are required"))
	}
	if c.Token == nil {
		errs = append(errs, errors.New("token is required"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{types.ErrInvalidParameter}, errs...)...)
	}
	return nil
}

type base struct {
	mu      sync.Mutex
	name    string
	address types.Address
	vault   types.Address
	owner   types.Address
	token   protocol.Token
	emitter events.Emitter
	log     zerolog.Logger
}

func newBase(cfg Config) (base, error) {
	if err := cfg.validate(); err != nil {
		return base{}, err
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}
	return base{
		name:    cfg.Name,
		address: cfg.Address,
		vault:   cfg.Vault,
		owner:   cfg.Owner,
		token:   cfg.Token,
		emitter: emitter,
		log:     cfg.Log.With().Str("adapter", cfg.Name).Logger(),
	}, nil
}

func (b *base) Name() string           { return b.name }
func (b *base) Address() types.Address { return b.address }

func (b *base) onlyVault(caller types.Address) error {
	if caller != b.vault {
		return fmt.Errorf("%w: %s is not the vault", types.ErrUnauthorized, caller)
	}
	return nil
}

func (b *base) onlyOwner(caller types.Address) error {
	if caller != b.owner {
		return fmt.Errorf("%w: %s is not the owner", types.ErrUnauthorized, caller)
	}
	return nil
}

func (b *base) onlyOwnerOrVault(caller types.Address) error {
	if caller != b.owner && caller != b.vault {
		return fmt.Errorf("%w: %s is neither owner nor vault", types.ErrUnauthorized, caller)
	}
	return nil
}

func requirePositive(amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", types.ErrInvalidAmount)
	}
	return nil
}

// pull moves amount from the vault into the adapter.
func (b *base) pull(ctx context.Context, amount sdkmath.Int) error {
	if err := b.token.TransferFrom(ctx, b.address, b.vault, b.address, amount); err != nil {
		return fmt.Errorf("%w: pull from vault: %w", types.ErrExternalCall, err)
	}
	return nil
}

// push sends amount from the adapter back to the vault.
func (b *base) push(ctx context.Context, amount sdkmath.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := b.token.Transfer(ctx, b.address, b.vault, amount); err != nil {
		return fmt.Errorf("%w: return to vault: %w", types.ErrExternalCall, err)
	}
	return nil
}

func (b *base) idle(ctx context.Context) (sdkmath.Int, error) {
	balance, err := b.token.BalanceOf(ctx, b.address)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: idle balance: %w", types.ErrExternalCall, err)
	}
	return balance, nil
}

// refund returns up to amount of idle funds to the vault after a failed deposit.
func (b *base) refund(ctx context.Context, amount sdkmath.Int) error {
	idle, err := b.idle(ctx)
	if err != nil {
		return err
	}
	return b.push(ctx, sdkmath.MinInt(idle, amount))
}
