// Package match implements the two-party escrow whose creation and result
// are admitted only through arbiter signatures.
package match

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/arbiter"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
)

var mlog = log.New("module", "match")

const (
	counterName = "match"
	// NonceScope is the nonce ledger scope shared by create and result
	// attestations.
	NonceScope = "arbiter"
)

// Contract is the address bound into every arbiter signature.
var Contract = crypto.ModuleAddress("match")

// Engine owns the match handlers. The verifier is the only trust root.
type Engine struct {
	verifier arbiter.Verifier
}

// NewEngine returns an Engine that checks attestations with v.
func NewEngine(v arbiter.Verifier) *Engine {
	return &Engine{verifier: v}
}

var defaultEngine *Engine

func init() {
	v, err := arbiter.NewECDSAVerifier(1024)
	if err != nil {
		panic(err)
	}
	defaultEngine = NewEngine(v)
	defaultEngine.register(vm.Register)
}

func (e *Engine) register(reg func(core.TxType, vm.Handler)) {
	reg(core.TxSetMatchParams, handleSetParams)
	reg(core.TxMatchCreate, e.handleCreate)
	reg(core.TxMatchJoin, handleJoin)
	reg(core.TxMatchResult, e.handleResult)
	reg(core.TxMatchClaimRefund, handleClaimRefund)
	reg(core.TxMatchEmergencyCancel, handleEmergencyCancel)
	reg(core.TxMatchRotateArbiter, handleRotateArbiter)
}

// Domain returns the signing domain of this chain.
func Domain(state core.State) (arbiter.Domain, error) {
	sys, err := state.GetSystem()
	if err != nil {
		return arbiter.Domain{}, errors.Wrap(err, "load system config")
	}
	return arbiter.Domain{EnvironmentID: sys.NetworkID, Contract: Contract}, nil
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.Wrapf(core.ErrValidation, "decode payload: %v", err)
	}
	return nil
}

func params(state core.State) (*core.MatchParams, error) {
	p, err := state.GetMatchParams()
	if errors.Is(err, core.ErrNotFound) {
		return nil, errors.Wrap(core.ErrState, "match engine not configured")
	}
	return p, err
}

func load(state core.State, id uint64) (*core.Match, error) {
	m, err := state.GetMatch(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, errors.Wrapf(core.ErrState, "match %d does not exist", id)
	}
	return m, err
}

// authorize verifies an attestation against the current arbiter, then
// consumes its nonce. The signature is checked first so a tampered message
// is reported as an authorization failure rather than a replay.
func (e *Engine) authorize(ctx *vm.Context, digest []byte, sig string, nonce *big.Int) error {
	p, err := params(ctx.State)
	if err != nil {
		return err
	}
	if err := arbiter.Authorize(e.verifier, digest, sig, p.Arbiter); err != nil {
		return err
	}
	used, err := ctx.State.IsNonceUsed(NonceScope, nonce)
	if err != nil {
		return err
	}
	if used {
		return errors.Wrapf(core.ErrReplay, "nonce %s already consumed", nonce)
	}
	return ctx.State.MarkNonceUsed(NonceScope, nonce)
}

func validNonce(n *big.Int) error {
	if n == nil || n.Sign() < 0 || n.BitLen() > 256 {
		return errors.Wrap(core.ErrValidation, "nonce must be a uint256")
	}
	return nil
}

// ValidateParams rejects unusable tiers and timeouts.
func ValidateParams(p *core.SetMatchParamsPayload) error {
	if len(p.Tiers) == 0 || len(p.Tiers) > 256 {
		return errors.Wrap(core.ErrValidation, "between 1 and 256 tiers required")
	}
	for i, t := range p.Tiers {
		if t == nil || t.Sign() <= 0 {
			return errors.Wrapf(core.ErrValidation, "tier %d stake must be > 0", i)
		}
	}
	switch {
	case p.JoinTimeout <= 0:
		return errors.Wrap(core.ErrValidation, "join_timeout must be > 0")
	case p.ActiveTimeout <= 0:
		return errors.Wrap(core.ErrValidation, "active_timeout must be > 0")
	case p.TieBurnBps > core.BpsDenominator:
		return errors.Wrapf(core.ErrValidation, "tie_burn_bps %d above 100%%", p.TieBurnBps)
	}
	return nil
}

func handleSetParams(ctx *vm.Context, payload json.RawMessage) error {
	if err := ledger.RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.SetMatchParamsPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if err := ValidateParams(&p); err != nil {
		return err
	}
	next := &core.MatchParams{}
	if cur, err := ctx.State.GetMatchParams(); err == nil {
		next.Arbiter = cur.Arbiter
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	next.Tiers = p.Tiers
	next.JoinTimeout = p.JoinTimeout
	next.ActiveTimeout = p.ActiveTimeout
	next.TieBurnBps = p.TieBurnBps
	if err := ctx.State.SetMatchParams(next); err != nil {
		return err
	}
	ctx.Emit(events.EventParamsUpdated, map[string]any{"engine": core.GameMatch, "tiers": len(p.Tiers)})
	return nil
}

func handleRotateArbiter(ctx *vm.Context, payload json.RawMessage) error {
	if err := ledger.RequireAdmin(ctx); err != nil {
		return err
	}
	var p core.RotateArbiterPayload
	if err := decode(payload, &p); err != nil {
		return err
	}
	if p.Arbiter == (common.Address{}) {
		return errors.Wrap(core.ErrValidation, "arbiter address required")
	}
	cur, err := params(ctx.State)
	if err != nil {
		return err
	}
	old := cur.Arbiter
	cur.Arbiter = p.Arbiter
	if err := ctx.State.SetMatchParams(cur); err != nil {
		return err
	}
	ctx.Emit(events.EventArbiterRotated, map[string]any{"old": old.Hex(), "new": p.Arbiter.Hex()})
	mlog.Warn("Arbiter rotated", "old", old, "new", p.Arbiter)
	return nil
}
