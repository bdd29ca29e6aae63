package match

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/arbiter"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
)

// SetVerifier replaces the verifier used by the registered handlers.
func SetVerifier(v arbiter.Verifier) {
	defaultEngine.verifier = v
}

func (e *Engine) handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MatchCreatePayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := validNonce(p.Nonce); err != nil {
		return err
	}
	domain, err := Domain(ctx.State)
	if err != nil {
		return err
	}
	digest := arbiter.CreateDigest(domain, p.Player1, p.Player2, p.Tier, p.Nonce)
	if err := e.authorize(ctx, digest, p.Signature, p.Nonce); err != nil {
		return err
	}

	zero := common.Address{}
	if p.Player1 == zero || p.Player2 == zero {
		return errors.Wrap(core.ErrValidation, "participants must be non-zero")
	}
	if p.Player1 == p.Player2 {
		return errors.Wrap(core.ErrValidation, "participants must differ")
	}
	mp, err := params(ctx.State)
	if err != nil {
		return err
	}
	if int(p.Tier) >= len(mp.Tiers) {
		return errors.Wrapf(core.ErrValidation, "unknown tier %d", p.Tier)
	}
	g, err := ledger.Game(ctx.State, core.GameMatch)
	if err != nil {
		return err
	}
	if !g.Active || g.Paused {
		return errors.Wrap(core.ErrState, "match game is not accepting matches")
	}

	id, err := ctx.State.GetCounter(counterName)
	if err != nil {
		return err
	}
	id++
	m := &core.Match{
		ID:           id,
		Player1:      p.Player1,
		Player2:      p.Player2,
		Tier:         p.Tier,
		Stake:        new(big.Int).Set(mp.Tiers[p.Tier]),
		State:        core.MatchCreated,
		Net1:         new(big.Int),
		Net2:         new(big.Int),
		CreatedAt:    ctx.Now(),
		JoinDeadline: ctx.Now() + mp.JoinTimeout,
	}
	if err := ctx.State.SetCounter(counterName, id); err != nil {
		return err
	}
	if err := ctx.State.SetMatch(m); err != nil {
		return err
	}
	ctx.Emit(events.EventMatchCreated, map[string]any{
		"match_id": m.ID,
		"player1":  m.Player1.Hex(),
		"player2":  m.Player2.Hex(),
		"tier":     m.Tier,
		"stake":    m.Stake.String(),
	})
	mlog.Info("Match created", "match", m.ID, "p1", m.Player1, "p2", m.Player2, "tier", m.Tier)
	return nil
}

func handleJoin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MatchRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	m, err := load(ctx.State, p.MatchID)
	if err != nil {
		return err
	}
	if m.State != core.MatchCreated && m.State != core.MatchWaiting {
		return errors.Wrapf(core.ErrState, "match %d is %s", m.ID, m.State)
	}
	if ctx.Now() >= m.JoinDeadline {
		return errors.Wrapf(core.ErrTiming, "match %d join deadline passed", m.ID)
	}
	seat := m.Seat(ctx.Tx.From)
	if seat == 0 {
		return errors.Wrapf(core.ErrAuthorization, "%s is not invited to match %d", ctx.Tx.From.Hex(), m.ID)
	}
	if (seat == 1 && m.Joined1) || (seat == 2 && m.Joined2) {
		return errors.Wrapf(core.ErrState, "%s already joined match %d", ctx.Tx.From.Hex(), m.ID)
	}

	entry, err := ledger.ProcessEntry(ctx, core.GameMatch, ctx.Tx.From, m.Stake)
	if err != nil {
		return err
	}
	if seat == 1 {
		m.Joined1, m.Net1 = true, entry.Net
	} else {
		m.Joined2, m.Net2 = true, entry.Net
	}
	if m.Joined1 && m.Joined2 {
		mp, err := params(ctx.State)
		if err != nil {
			return err
		}
		m.State = core.MatchActive
		m.ActivatedAt = ctx.Now()
		m.ActiveDeadline = ctx.Now() + mp.ActiveTimeout
	} else {
		m.State = core.MatchWaiting
	}
	if err := ctx.State.SetMatch(m); err != nil {
		return err
	}
	ctx.Emit(events.EventMatchJoined, map[string]any{
		"match_id": m.ID,
		"player":   ctx.Tx.From.Hex(),
		"net":      entry.Net.String(),
		"state":    string(m.State),
	})
	return nil
}

func checkResultShape(p *core.MatchResultPayload) error {
	switch p.Outcome {
	case core.OutcomeWin, core.OutcomeForfeit:
		if p.Winner == (common.Address{}) {
			return errors.Wrapf(core.ErrValidation, "%s needs a winner", p.Outcome)
		}
	case core.OutcomeTie, core.OutcomeTimeout:
		if p.Winner != (common.Address{}) {
			return errors.Wrapf(core.ErrValidation, "%s must not name a winner", p.Outcome)
		}
	default:
		return errors.Wrapf(core.ErrValidation, "invalid outcome %s", p.Outcome)
	}
	return nil
}

func (e *Engine) handleResult(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MatchResultPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := validNonce(p.Nonce); err != nil {
		return err
	}
	if err := checkResultShape(&p); err != nil {
		return err
	}
	domain, err := Domain(ctx.State)
	if err != nil {
		return err
	}
	digest := arbiter.ResultDigest(domain, p.MatchID, p.Winner, p.Outcome, p.Nonce)
	if err := e.authorize(ctx, digest, p.Signature, p.Nonce); err != nil {
		return err
	}

	m, err := load(ctx.State, p.MatchID)
	if err != nil {
		return err
	}
	if m.State != core.MatchActive {
		return errors.Wrapf(core.ErrState, "match %d is %s", m.ID, m.State)
	}
	if ctx.Now() >= m.ActiveDeadline {
		return errors.Wrapf(core.ErrTiming, "match %d active deadline passed", m.ID)
	}
	if p.Winner != (common.Address{}) && m.Seat(p.Winner) == 0 {
		return errors.Wrapf(core.ErrValidation, "winner %s is not a participant", p.Winner.Hex())
	}

	m.Outcome = p.Outcome
	m.Winner = p.Winner
	m.ClosedAt = ctx.Now()
	if p.Outcome == core.OutcomeTimeout {
		m.State = core.MatchCancelled
		m.CancelReason = "timeout"
		if err := ctx.State.SetMatch(m); err != nil {
			return err
		}
		ctx.Emit(events.EventMatchCancelled, map[string]any{"match_id": m.ID, "reason": m.CancelReason})
		return nil
	}

	m.State = core.MatchResolved
	if err := ctx.State.SetMatch(m); err != nil {
		return err
	}
	if err := distribute(ctx, m, p.Outcome, p.Winner); err != nil {
		return err
	}
	ctx.Emit(events.EventMatchResolved, map[string]any{
		"match_id": m.ID,
		"outcome":  p.Outcome.String(),
		"winner":   p.Winner.Hex(),
		"pool":     m.Pool().String(),
	})
	mlog.Info("Match resolved", "match", m.ID, "outcome", p.Outcome, "winner", p.Winner)
	return nil
}

// TieSplit divides a pool after burning burnBps of it. The odd unit left by
// the even split goes to the treasury.
func TieSplit(pool *big.Int, burnBps uint64) (burn, each, odd *big.Int) {
	burn = core.MulBps(pool, burnBps)
	rest := new(big.Int).Sub(pool, burn)
	each, odd = new(big.Int).QuoRem(rest, big.NewInt(2), new(big.Int))
	return burn, each, odd
}

func distribute(ctx *vm.Context, m *core.Match, outcome core.MatchOutcome, winner common.Address) error {
	pool := m.Pool()
	if outcome == core.OutcomeWin || outcome == core.OutcomeForfeit {
		return ledger.CreditPayout(ctx, core.GameMatch, winner, pool)
	}
	mp, err := params(ctx.State)
	if err != nil {
		return err
	}
	burn, each, odd := TieSplit(pool, mp.TieBurnBps)
	if err := ledger.Burn(ctx, core.GameMatch, burn); err != nil {
		return err
	}
	if err := ledger.CreditPayout(ctx, core.GameMatch, m.Player1, each); err != nil {
		return err
	}
	if err := ledger.CreditPayout(ctx, core.GameMatch, m.Player2, each); err != nil {
		return err
	}
	return ledger.CreditTreasury(ctx, core.GameMatch, odd)
}

// Refundable reports whether deposits in m can be reclaimed at now.
func Refundable(m *core.Match, now int64) bool {
	switch m.State {
	case core.MatchCancelled:
		return true
	case core.MatchCreated, core.MatchWaiting:
		return now >= m.JoinDeadline
	case core.MatchActive:
		return now >= m.ActiveDeadline
	}
	return false
}

func handleClaimRefund(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MatchRefPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	m, err := load(ctx.State, p.MatchID)
	if err != nil {
		return err
	}
	if !Refundable(m, ctx.Now()) {
		if m.State.Open() {
			return errors.Wrapf(core.ErrTiming, "match %d is %s and not timed out", m.ID, m.State)
		}
		return errors.Wrapf(core.ErrState, "match %d is %s", m.ID, m.State)
	}

	var net *big.Int
	switch seat := m.Seat(ctx.Tx.From); {
	case seat == 1 && m.Joined1:
		if m.Refunded1 {
			return errors.Wrapf(core.ErrState, "%s already refunded", ctx.Tx.From.Hex())
		}
		m.Refunded1, net = true, m.Net1
	case seat == 2 && m.Joined2:
		if m.Refunded2 {
			return errors.Wrapf(core.ErrState, "%s already refunded", ctx.Tx.From.Hex())
		}
		m.Refunded2, net = true, m.Net2
	default:
		return errors.Wrapf(core.ErrAuthorization, "%s did not deposit in match %d", ctx.Tx.From.Hex(), m.ID)
	}

	if m.State != core.MatchCancelled {
		m.CancelReason = "timeout"
		if m.State == core.MatchActive {
			m.CancelReason = "active timeout"
		}
		m.State = core.MatchCancelled
		m.ClosedAt = ctx.Now()
		ctx.Emit(events.EventMatchCancelled, map[string]any{"match_id": m.ID, "reason": m.CancelReason})
	}
	if err := ctx.State.SetMatch(m); err != nil {
		return err
	}
	return ledger.Refund(ctx, core.GameMatch, ctx.Tx.From, net)
}

func handleEmergencyCancel(ctx *vm.Context, payload json.RawMessage) error {
	if err := ledger.RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.MatchCancelPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if p.Reason == "" {
		return errors.Wrap(core.ErrValidation, "reason required")
	}
	m, err := load(ctx.State, p.MatchID)
	if err != nil {
		return err
	}
	if !m.State.Open() {
		return errors.Wrapf(core.ErrState, "match %d is %s", m.ID, m.State)
	}
	m.State = core.MatchCancelled
	m.CancelReason = p.Reason
	m.ClosedAt = ctx.Now()
	if err := ctx.State.SetMatch(m); err != nil {
		return err
	}
	ctx.Emit(events.EventMatchCancelled, map[string]any{"match_id": m.ID, "reason": p.Reason, "admin": true})
	mlog.Warn("Match cancelled by admin", "match", m.ID, "reason", p.Reason)
	return nil
}
