// Package round implements the provably-fair multiplier game. Players
// commit a stake and a target multiplier while the outcome depends on a
// block that has not been produced yet; once that block exists its hash
// fixes the crash point and every stake is settled against it.
package round

import (
	"encoding/hex"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
)

var rlog = log.New("module", "round")

// counterName holds the id of the most recently opened round.
const counterName = "round"

func init() {
	vm.Register(core.TxSetRoundParams, handleSetParams)
	vm.Register(core.TxRoundOpen, handleOpen)
	vm.Register(core.TxRoundCommit, handleCommit)
	vm.Register(core.TxRoundLock, handleLock)
	vm.Register(core.TxRoundReveal, handleReveal)
	vm.Register(core.TxRoundSettle, handleSettle)
	vm.Register(core.TxRoundSettleAll, handleSettleAll)
	vm.Register(core.TxRoundHandleExpired, handleExpired)
	vm.Register(core.TxRoundClaimRefund, handleClaimRefund)
}

// ValidateParams rejects unusable round parameters.
func ValidateParams(p *core.RoundParams) error {
	switch {
	case p.BettingWindow <= 0:
		return errors.Wrap(core.ErrValidation, "betting_window must be > 0")
	case p.MaxPlayers == 0:
		return errors.Wrap(core.ErrValidation, "max_players must be > 0")
	case p.RevealDelay < 1:
		return errors.Wrap(core.ErrValidation, "reveal_delay must be >= 1")
	}
	return nil
}

// Current returns the most recently opened round.
func Current(state core.State) (*core.Round, error) {
	id, err := state.GetCounter(counterName)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, errors.Wrap(core.ErrNotFound, "no round opened yet")
	}
	return state.GetRound(id)
}

// Liability is the reserve locked so that a stake of net at target can be
// paid net*target/Precision.
func Liability(net *big.Int, target uint64) *big.Int {
	return new(big.Int).Sub(Payout(net, target), net)
}

// Payout is the winning credit of a stake of net at target.
func Payout(net *big.Int, target uint64) *big.Int {
	p := new(big.Int).Mul(net, new(big.Int).SetUint64(target))
	return p.Quo(p, big.NewInt(Precision))
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrapf(core.ErrValidation, "decode payload: %v", err)
	}
	return nil
}

// load returns round id (zero means current) after applying any transition
// that is already due. moved reports whether such a transition happened.
func load(ctx *vm.Context, id uint64) (r *core.Round, moved bool, err error) {
	if id == 0 {
		r, err = Current(ctx.State)
	} else {
		r, err = ctx.State.GetRound(id)
	}
	if errors.Is(err, core.ErrNotFound) {
		return nil, false, errors.Wrapf(core.ErrState, "round %d does not exist", id)
	}
	if err != nil {
		return nil, false, err
	}
	before := r.State
	if err := advance(ctx, r); err != nil {
		return nil, false, err
	}
	return r, r.State != before, nil
}

// advance applies lazy time-based transitions: a betting window that has
// elapsed locks the round and an entropy block that has aged out of every
// lookup path expires it.
func advance(ctx *vm.Context, r *core.Round) error {
	switch r.State {
	case core.RoundBetting:
		if ctx.Now() >= r.BettingEndsAt {
			return lock(ctx, r)
		}
	case core.RoundLocked:
		if ctx.Entropy != nil && ctx.Entropy.Expired(r.EntropyBlock, ctx.Height()) {
			return expire(ctx, r)
		}
	}
	return nil
}

func lock(ctx *vm.Context, r *core.Round) error {
	if len(r.Players) == 0 {
		r.State = core.RoundCancelled
		r.ClosedAt = ctx.Now()
		ctx.Emit(events.EventRoundCancelled, map[string]any{"round_id": r.ID})
		return ctx.State.SetRound(r)
	}
	params, err := ctx.State.GetRoundParams()
	if err != nil {
		return errors.Wrap(err, "load round params")
	}
	r.State = core.RoundLocked
	r.LockedAt = ctx.Now()
	r.EntropyBlock = ctx.Height() + params.RevealDelay
	ctx.Emit(events.EventRoundLocked, map[string]any{
		"round_id":      r.ID,
		"players":       len(r.Players),
		"pool":          r.Pool.String(),
		"entropy_block": r.EntropyBlock,
	})
	rlog.Debug("Round locked", "round", r.ID, "players", len(r.Players), "entropy", r.EntropyBlock)
	return ctx.State.SetRound(r)
}

func expire(ctx *vm.Context, r *core.Round) error {
	if r.Liability.Sign() > 0 {
		if err := ledger.ReleaseLiability(ctx, core.GameRound, r.Liability); err != nil {
			return err
		}
	}
	r.State = core.RoundExpired
	r.ClosedAt = ctx.Now()
	ctx.Emit(events.EventRoundExpired, map[string]any{"round_id": r.ID, "entropy_block": r.EntropyBlock})
	rlog.Warn("Round expired before reveal", "round", r.ID, "entropy", r.EntropyBlock, "height", ctx.Height())
	return ctx.State.SetRound(r)
}

func handleSetParams(ctx *vm.Context, payload json.RawMessage) error {
	if err := ledger.RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.SetRoundParamsPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := ValidateParams(&p.Params); err != nil {
		return err
	}
	if err := ctx.State.SetRoundParams(&p.Params); err != nil {
		return err
	}
	ctx.Emit(events.EventParamsUpdated, map[string]any{"engine": core.GameRound})
	return nil
}

func handleOpen(ctx *vm.Context, _ json.RawMessage) error {
	id, err := ctx.State.GetCounter(counterName)
	if err != nil {
		return err
	}
	if id > 0 {
		prev, _, err := load(ctx, id)
		if err != nil {
			return err
		}
		if !prev.State.Terminal() {
			return errors.Wrapf(core.ErrState, "round %d is still %s", prev.ID, prev.State)
		}
	}
	g, err := ledger.Game(ctx.State, core.GameRound)
	if err != nil {
		return err
	}
	if !g.Active || g.Paused {
		return errors.Wrap(core.ErrState, "round game is not accepting rounds")
	}
	params, err := ctx.State.GetRoundParams()
	if err != nil {
		return errors.Wrap(err, "load round params")
	}

	r := &core.Round{
		ID:            id + 1,
		State:         core.RoundBetting,
		MaxPlayers:    params.MaxPlayers,
		Pool:          new(big.Int),
		Liability:     new(big.Int),
		OpenedAt:      ctx.Now(),
		BettingEndsAt: ctx.Now() + params.BettingWindow,
	}
	if err := ctx.State.SetCounter(counterName, r.ID); err != nil {
		return err
	}
	if err := ctx.State.SetRound(r); err != nil {
		return err
	}
	ctx.Emit(events.EventRoundOpened, map[string]any{"round_id": r.ID, "betting_ends_at": r.BettingEndsAt})
	rlog.Info("Round opened", "round", r.ID, "ends", r.BettingEndsAt)
	return nil
}

func handleCommit(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundCommitPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if p.Target < MinTarget || p.Target > MaxTarget {
		return errors.Wrapf(core.ErrValidation, "target %d outside [%d, %d]", p.Target, MinTarget, MaxTarget)
	}
	r, moved, err := load(ctx, 0)
	if err != nil {
		return err
	}
	if moved {
		return errors.Wrapf(core.ErrTiming, "round %d betting window closed at %d", r.ID, r.BettingEndsAt)
	}
	if r.State != core.RoundBetting {
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
	player := ctx.Tx.From
	if _, err := ctx.State.GetRoundStake(r.ID, player); err == nil {
		return errors.Wrapf(core.ErrState, "%s already entered round %d", player.Hex(), r.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	entry, err := ledger.ProcessEntry(ctx, core.GameRound, player, p.Amount)
	if err != nil {
		return err
	}
	liability := Liability(entry.Net, p.Target)
	if err := ledger.LockLiability(ctx, core.GameRound, liability); err != nil {
		return err
	}

	stake := &core.RoundStake{
		RoundID:   r.ID,
		Player:    player,
		Gross:     entry.Gross,
		Net:       entry.Net,
		Target:    p.Target,
		Liability: liability,
		Payout:    new(big.Int),
	}
	if err := ctx.State.SetRoundStake(stake); err != nil {
		return err
	}
	r.Players = append(r.Players, player)
	r.Pool.Add(r.Pool, entry.Net)
	r.Liability.Add(r.Liability, liability)
	ctx.Emit(events.EventRoundCommitted, map[string]any{
		"round_id": r.ID,
		"player":   player.Hex(),
		"gross":    entry.Gross.String(),
		"net":      entry.Net.String(),
		"target":   p.Target,
	})

	if uint32(len(r.Players)) >= r.MaxPlayers {
		return lock(ctx, r)
	}
	return ctx.State.SetRound(r)
}

func handleLock(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	r, moved, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	switch {
	case moved && (r.State == core.RoundLocked || r.State == core.RoundCancelled):
		return nil
	case r.State == core.RoundBetting:
		return errors.Wrapf(core.ErrTiming, "round %d betting open until %d", r.ID, r.BettingEndsAt)
	default:
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
}

func handleReveal(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	r, moved, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	if moved && r.State == core.RoundExpired {
		return errors.Wrapf(core.ErrTiming, "round %d entropy block %d is no longer retrievable", r.ID, r.EntropyBlock)
	}
	if r.State != core.RoundLocked {
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
	hash, err := ctx.Entropy.BlockHash(r.EntropyBlock, ctx.Height())
	if err != nil {
		return err
	}

	r.EntropyHash = hex.EncodeToString(hash)
	r.Outcome = CrashPoint(hash, r.ID)
	r.RevealedAt = ctx.Now()
	r.State = core.RoundActive
	if err := ctx.State.SetRound(r); err != nil {
		return err
	}
	ctx.Emit(events.EventRoundRevealed, map[string]any{
		"round_id":     r.ID,
		"entropy_hash": r.EntropyHash,
		"outcome":      r.Outcome,
	})
	rlog.Info("Round revealed", "round", r.ID, "outcome", r.Outcome)
	return nil
}

func settle(ctx *vm.Context, r *core.Round, player common.Address) error {
	stake, err := ctx.State.GetRoundStake(r.ID, player)
	if errors.Is(err, core.ErrNotFound) {
		return errors.Wrapf(core.ErrState, "%s has no stake in round %d", player.Hex(), r.ID)
	}
	if err != nil {
		return err
	}
	if stake.Resolved {
		return errors.Wrapf(core.ErrState, "stake of %s in round %d already settled", player.Hex(), r.ID)
	}

	stake.Resolved = true
	stake.Won = Wins(stake.Target, r.Outcome)
	if stake.Won {
		stake.Payout = Payout(stake.Net, stake.Target)
		if err := ledger.ConsumeLiability(ctx, core.GameRound, stake.Liability); err != nil {
			return err
		}
		if err := ledger.CreditPayout(ctx, core.GameRound, player, stake.Payout); err != nil {
			return err
		}
	} else {
		if err := ledger.ReleaseLiability(ctx, core.GameRound, stake.Liability); err != nil {
			return err
		}
		if err := ledger.Forfeit(ctx, core.GameRound, stake.Net); err != nil {
			return err
		}
	}
	if err := ctx.State.SetRoundStake(stake); err != nil {
		return err
	}
	r.Liability.Sub(r.Liability, stake.Liability)
	r.Resolved++
	ctx.Emit(events.EventStakeSettled, map[string]any{
		"round_id": r.ID,
		"player":   player.Hex(),
		"target":   stake.Target,
		"won":      stake.Won,
		"payout":   stake.Payout.String(),
	})
	if r.Resolved == len(r.Players) {
		r.State = core.RoundSettled
		r.ClosedAt = ctx.Now()
		ctx.Emit(events.EventRoundSettled, map[string]any{"round_id": r.ID, "outcome": r.Outcome})
	}
	return nil
}

func handleSettle(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundPlayerPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if p.Player == (common.Address{}) {
		p.Player = ctx.Tx.From
	}
	r, _, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	if r.State != core.RoundActive {
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
	if err := settle(ctx, r, p.Player); err != nil {
		return err
	}
	return ctx.State.SetRound(r)
}

func handleSettleAll(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	r, _, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	if r.State != core.RoundActive {
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
	for _, player := range r.Players {
		stake, err := ctx.State.GetRoundStake(r.ID, player)
		if err != nil {
			return err
		}
		if stake.Resolved {
			continue
		}
		if err := settle(ctx, r, player); err != nil {
			return err
		}
	}
	return ctx.State.SetRound(r)
}

func handleExpired(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	r, moved, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	switch {
	case moved && r.State == core.RoundExpired:
		return nil
	case r.State == core.RoundLocked:
		return errors.Wrapf(core.ErrTiming, "round %d entropy block %d still retrievable", r.ID, r.EntropyBlock)
	default:
		return errors.Wrapf(core.ErrState, "round %d is %s", r.ID, r.State)
	}
}

func handleClaimRefund(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RoundPlayerPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	player := ctx.Tx.From
	if p.Player != (common.Address{}) && p.Player != player {
		return errors.Wrap(core.ErrAuthorization, "refunds are claimed by the depositor")
	}
	r, _, err := load(ctx, p.RoundID)
	if err != nil {
		return err
	}
	if r.State != core.RoundExpired {
		return errors.Wrapf(core.ErrState, "round %d is %s, not refundable", r.ID, r.State)
	}
	stake, err := ctx.State.GetRoundStake(r.ID, player)
	if errors.Is(err, core.ErrNotFound) {
		return errors.Wrapf(core.ErrAuthorization, "%s did not deposit in round %d", player.Hex(), r.ID)
	}
	if err != nil {
		return err
	}
	if stake.Refunded || stake.Resolved {
		return errors.Wrapf(core.ErrState, "stake of %s in round %d already closed", player.Hex(), r.ID)
	}
	stake.Refunded = true
	stake.Resolved = true
	if err := ctx.State.SetRoundStake(stake); err != nil {
		return err
	}
	r.Resolved++
	if err := ctx.State.SetRound(r); err != nil {
		return err
	}
	return ledger.Refund(ctx, core.GameRound, player, stake.Net)
}
