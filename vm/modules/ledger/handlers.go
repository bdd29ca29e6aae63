package ledger

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/token"
)

func init() {
	vm.Register(core.TxRegisterGame, handleRegisterGame)
	vm.Register(core.TxUpdateGame, handleUpdateGame)
	vm.Register(core.TxPauseGame, handlePause(true))
	vm.Register(core.TxUnpauseGame, handlePause(false))
	vm.Register(core.TxSetGameActive, handleSetGameActive)
	vm.Register(core.TxWithdrawPayout, handleWithdrawPayout)
	vm.Register(core.TxFundReserve, handleFundReserve)
	vm.Register(core.TxWithdrawReserve, handleWithdrawReserve)
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrapf(core.ErrValidation, "decode payload: %v", err)
	}
	return nil
}

// ValidatePolicy rejects malformed stake and fee policy.
func ValidatePolicy(p *core.GamePolicyPayload) error {
	switch {
	case p.GameID == "":
		return errors.Wrap(core.ErrValidation, "game_id required")
	case p.MinStake == nil || p.MinStake.Sign() <= 0:
		return errors.Wrap(core.ErrValidation, "min_stake must be > 0")
	case p.MaxStake == nil || p.MaxStake.Cmp(p.MinStake) < 0:
		return errors.Wrap(core.ErrValidation, "max_stake must be >= min_stake")
	case p.RakeBps > core.BpsDenominator:
		return errors.Wrapf(core.ErrValidation, "rake_bps %d above 100%%", p.RakeBps)
	case p.BurnBps > core.BpsDenominator:
		return errors.Wrapf(core.ErrValidation, "burn_bps %d above 100%%", p.BurnBps)
	}
	return nil
}

// RegisterGame stores a new game policy. Genesis calls it directly.
func RegisterGame(state core.State, p *core.GamePolicyPayload, now int64) (*core.GameConfig, error) {
	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}
	if _, err := state.GetGame(p.GameID); err == nil {
		return nil, errors.Wrapf(core.ErrState, "game %q already registered", p.GameID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, errors.Wrapf(err, "checking game %q", p.GameID)
	}
	g := &core.GameConfig{
		ID:           p.GameID,
		MinStake:     p.MinStake,
		MaxStake:     p.MaxStake,
		RakeBps:      p.RakeBps,
		BurnBps:      p.BurnBps,
		Active:       true,
		RegisteredAt: now,
	}
	if err := state.SetGame(g); err != nil {
		return nil, err
	}
	return g, state.SetGameBook(core.NewGameBook(p.GameID))
}

func handleRegisterGame(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.GamePolicyPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	g, err := RegisterGame(ctx.State, &p, ctx.Now())
	if err != nil {
		return err
	}
	ctx.Emit(events.EventGameRegistered, map[string]any{
		"game_id":   g.ID,
		"min_stake": g.MinStake.String(),
		"max_stake": g.MaxStake.String(),
		"rake_bps":  g.RakeBps,
		"burn_bps":  g.BurnBps,
	})
	llog.Info("Game registered", "game", g.ID, "rake", g.RakeBps, "burn", g.BurnBps)
	return nil
}

func handleUpdateGame(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.GamePolicyPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := ValidatePolicy(&p); err != nil {
		return err
	}
	g, err := Game(ctx.State, p.GameID)
	if err != nil {
		return err
	}
	g.MinStake, g.MaxStake = p.MinStake, p.MaxStake
	g.RakeBps, g.BurnBps = p.RakeBps, p.BurnBps
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	ctx.Emit(events.EventGameUpdated, map[string]any{"game_id": g.ID, "rake_bps": g.RakeBps, "burn_bps": g.BurnBps})
	return nil
}

func handlePause(pause bool) vm.Handler {
	return func(ctx *vm.Context, payload json.RawMessage) error {
		if err := RequireAdmin(ctx); err != nil {
			return err
		}
		var p core.GameRefPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		g, err := Game(ctx.State, p.GameID)
		if err != nil {
			return err
		}
		if g.Paused == pause {
			return errors.Wrapf(core.ErrState, "game %q paused=%t already", g.ID, pause)
		}
		g.Paused = pause
		if err := ctx.State.SetGame(g); err != nil {
			return err
		}
		typ := events.EventGameUnpaused
		if pause {
			typ = events.EventGamePaused
		}
		ctx.Emit(typ, map[string]any{"game_id": g.ID})
		llog.Info("Game pause toggled", "game", g.ID, "paused", pause)
		return nil
	}
}

func handleSetGameActive(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.SetGameActivePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	g, err := Game(ctx.State, p.GameID)
	if err != nil {
		return err
	}
	g.Active = p.Active
	if err := ctx.State.SetGame(g); err != nil {
		return err
	}
	ctx.Emit(events.EventGameActivated, map[string]any{"game_id": g.ID, "active": g.Active})
	return nil
}

// handleWithdrawPayout zeroes the pending balance before the transfer.
// An empty balance is a successful no-op.
func handleWithdrawPayout(ctx *vm.Context, _ json.RawMessage) error {
	player := ctx.Tx.From
	amount, err := ctx.State.GetPendingPayout(player)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := ctx.State.SetPendingPayout(player, new(big.Int)); err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, Custody, player, amount); err != nil {
		return err
	}
	ctx.Emit(events.EventPayoutWithdrawn, map[string]any{"player": player.Hex(), "amount": amount.String()})
	return nil
}

// SeedReserve mints amount into custody as free reserve of gameID.
// Genesis calls it directly; at runtime the reserve is funded by transfer.
func SeedReserve(state core.State, gameID string, amount *big.Int) error {
	if _, err := Game(state, gameID); err != nil {
		return err
	}
	if err := token.Mint(state, Custody, amount); err != nil {
		return err
	}
	return updateBook(state, gameID, func(b *core.GameBook) error {
		b.Reserve.Add(b.Reserve, amount)
		return nil
	})
}

func handleFundReserve(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ReservePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if _, err := Game(ctx.State, p.GameID); err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, ctx.Tx.From, Custody, p.Amount); err != nil {
		return err
	}
	err := updateBook(ctx.State, p.GameID, func(b *core.GameBook) error {
		b.Reserve.Add(b.Reserve, p.Amount)
		return nil
	})
	if err != nil {
		return err
	}
	ctx.Emit(events.EventReserveFunded, map[string]any{
		"game_id": p.GameID,
		"funder":  ctx.Tx.From.Hex(),
		"amount":  p.Amount.String(),
	})
	return nil
}

// handleWithdrawReserve moves free reserve to the treasury. Locked
// liability cannot be withdrawn.
func handleWithdrawReserve(ctx *vm.Context, payload json.RawMessage) error {
	if err := RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.ReservePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return errors.Wrap(core.ErrValidation, "amount must be > 0")
	}
	if _, err := Game(ctx.State, p.GameID); err != nil {
		return err
	}
	err := updateBook(ctx.State, p.GameID, func(b *core.GameBook) error {
		if b.Reserve.Cmp(p.Amount) < 0 {
			return errors.Wrapf(core.ErrInsufficient, "free reserve %s below %s", b.Reserve, p.Amount)
		}
		b.Reserve.Sub(b.Reserve, p.Amount)
		return nil
	})
	if err != nil {
		return err
	}
	to, err := treasury(ctx.State)
	if err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, Custody, to, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventReserveWithdraw, map[string]any{"game_id": p.GameID, "amount": p.Amount.String()})
	return nil
}
