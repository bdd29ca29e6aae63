// Package ledger is the settlement core shared by every game engine: the
// game registry, stake custody with fee splitting, the house reserve and the
// pull-payment balance sheet.
package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/token"
)

var llog = log.New("module", "ledger")

// Custody holds every net stake, the house reserves and all pending payouts.
var Custody = crypto.ModuleAddress("ledger")

// Entry is the fee split of one accepted stake.
type Entry struct {
	Gross    *big.Int
	Fee      *big.Int
	Burned   *big.Int
	Treasury *big.Int
	Net      *big.Int
}

// RequireAdmin fails with ErrAuthorization unless the sender is the admin.
func RequireAdmin(ctx *vm.Context) error {
	sys, err := ctx.State.GetSystem()
	if err != nil {
		return errors.Wrap(err, "load system config")
	}
	if ctx.Tx.From != sys.Admin {
		return errors.Wrapf(core.ErrAuthorization, "%s is not the admin", ctx.Tx.From.Hex())
	}
	return nil
}

func treasury(state core.State) (common.Address, error) {
	sys, err := state.GetSystem()
	if err != nil {
		return common.Address{}, errors.Wrap(err, "load system config")
	}
	return sys.Treasury, nil
}

// Game loads a registered game.
func Game(state core.State, gameID string) (*core.GameConfig, error) {
	g, err := state.GetGame(gameID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errors.Wrapf(core.ErrState, "game %q is not registered", gameID)
	}
	return g, err
}

// SplitFee computes the fee split of gross under g's policy. The integer
// division remainder of the burn share stays with the treasury.
func SplitFee(g *core.GameConfig, gross *big.Int) *Entry {
	fee := core.MulBps(gross, g.RakeBps)
	burned := core.MulBps(fee, g.BurnBps)
	return &Entry{
		Gross:    new(big.Int).Set(gross),
		Fee:      fee,
		Burned:   burned,
		Treasury: new(big.Int).Sub(fee, burned),
		Net:      new(big.Int).Sub(gross, fee),
	}
}

// ProcessEntry pulls gross from player into custody and applies the game's
// fee split. The player must have approved Custody as spender. The net
// amount stays in custody for the calling engine to account for.
func ProcessEntry(ctx *vm.Context, gameID string, player common.Address, gross *big.Int) (*Entry, error) {
	g, err := Game(ctx.State, gameID)
	if err != nil {
		return nil, err
	}
	if !g.Active {
		return nil, errors.Wrapf(core.ErrState, "game %q is not active", gameID)
	}
	if g.Paused {
		return nil, errors.Wrapf(core.ErrState, "game %q is paused", gameID)
	}
	if gross == nil || gross.Sign() <= 0 {
		return nil, errors.Wrap(core.ErrValidation, "stake must be > 0")
	}
	if gross.Cmp(g.MinStake) < 0 || gross.Cmp(g.MaxStake) > 0 {
		return nil, errors.Wrapf(core.ErrValidation, "stake %s outside [%s, %s]", gross, g.MinStake, g.MaxStake)
	}

	if err := token.TransferFrom(ctx.State, Custody, player, Custody, gross); err != nil {
		return nil, err
	}
	entry := SplitFee(g, gross)
	if entry.Burned.Sign() > 0 {
		if err := token.Burn(ctx.State, Custody, entry.Burned); err != nil {
			return nil, err
		}
	}
	if entry.Treasury.Sign() > 0 {
		to, err := treasury(ctx.State)
		if err != nil {
			return nil, err
		}
		if err := token.Transfer(ctx.State, Custody, to, entry.Treasury); err != nil {
			return nil, err
		}
	}

	err = updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Gross.Add(b.Gross, entry.Gross)
		b.Net.Add(b.Net, entry.Net)
		b.Burned.Add(b.Burned, entry.Burned)
		b.Treasury.Add(b.Treasury, entry.Treasury)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx.Emit(events.EventEntryAccepted, map[string]any{
		"game_id":  gameID,
		"player":   player.Hex(),
		"gross":    entry.Gross.String(),
		"net":      entry.Net.String(),
		"burned":   entry.Burned.String(),
		"treasury": entry.Treasury.String(),
	})
	llog.Debug("Entry accepted", "game", gameID, "player", player, "gross", entry.Gross, "net", entry.Net)
	return entry, nil
}

// CreditPayout adds amount to player's pending balance. Paused games may
// still credit so active sessions can always settle.
func CreditPayout(ctx *vm.Context, gameID string, player common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errors.Wrap(core.ErrValidation, "payout must be >= 0")
	}
	if _, err := Game(ctx.State, gameID); err != nil {
		return err
	}
	pending, err := ctx.State.GetPendingPayout(player)
	if err != nil {
		return err
	}
	if err := ctx.State.SetPendingPayout(player, pending.Add(pending, amount)); err != nil {
		return err
	}
	err = updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Credited.Add(b.Credited, amount)
		return nil
	})
	if err != nil {
		return err
	}
	ctx.Emit(events.EventPayoutCredited, map[string]any{
		"game_id": gameID,
		"player":  player.Hex(),
		"amount":  amount.String(),
	})
	return nil
}

// Refund returns amount from custody to player directly. Callers mark the
// stake refunded before calling. A zero amount (full rake) is a no-op.
func Refund(ctx *vm.Context, gameID string, player common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errors.Wrap(core.ErrValidation, "refund must not be negative")
	}
	err := updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Refunded.Add(b.Refunded, amount)
		return nil
	})
	if err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, Custody, player, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventRefund, map[string]any{
		"game_id": gameID,
		"player":  player.Hex(),
		"amount":  amount.String(),
	})
	return nil
}

// Burn destroys amount held in custody on behalf of gameID.
func Burn(ctx *vm.Context, gameID string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	err := updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Burned.Add(b.Burned, amount)
		return nil
	})
	if err != nil {
		return err
	}
	if err := token.Burn(ctx.State, Custody, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenBurn, map[string]any{"game_id": gameID, "amount": amount.String()})
	return nil
}

// CreditTreasury sends amount from custody to the treasury.
func CreditTreasury(ctx *vm.Context, gameID string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	to, err := treasury(ctx.State)
	if err != nil {
		return err
	}
	err = updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Treasury.Add(b.Treasury, amount)
		return nil
	})
	if err != nil {
		return err
	}
	return token.Transfer(ctx.State, Custody, to, amount)
}

// LockLiability moves amount from the free reserve to the locked liability.
func LockLiability(ctx *vm.Context, gameID string, amount *big.Int) error {
	return updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		if b.Reserve.Cmp(amount) < 0 {
			return errors.Wrapf(core.ErrInsufficient, "reserve of %q: have %s, need %s", gameID, b.Reserve, amount)
		}
		b.Reserve.Sub(b.Reserve, amount)
		b.Liability.Add(b.Liability, amount)
		return nil
	})
}

// ReleaseLiability returns locked liability to the free reserve.
func ReleaseLiability(ctx *vm.Context, gameID string, amount *big.Int) error {
	return updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		if err := takeLiability(b, amount); err != nil {
			return err
		}
		b.Reserve.Add(b.Reserve, amount)
		return nil
	})
}

// ConsumeLiability removes locked liability that is being paid out to a
// winner together with their stake.
func ConsumeLiability(ctx *vm.Context, gameID string, amount *big.Int) error {
	return updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		return takeLiability(b, amount)
	})
}

// Forfeit adds a lost stake, already in custody, to the house reserve.
func Forfeit(ctx *vm.Context, gameID string, amount *big.Int) error {
	return updateBook(ctx.State, gameID, func(b *core.GameBook) error {
		b.Reserve.Add(b.Reserve, amount)
		return nil
	})
}

func takeLiability(b *core.GameBook, amount *big.Int) error {
	if b.Liability.Cmp(amount) < 0 {
		return errors.Errorf("liability of %q underflow: have %s, take %s", b.GameID, b.Liability, amount)
	}
	b.Liability.Sub(b.Liability, amount)
	return nil
}

func updateBook(state core.State, gameID string, fn func(*core.GameBook) error) error {
	b, err := state.GetGameBook(gameID)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		return err
	}
	return state.SetGameBook(b)
}
