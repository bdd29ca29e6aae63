// Package token implements the payment asset: an 18-decimal fungible
// balance store with transfer, allowance and burn.
package token

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
	vm.Register(core.TxApprove, handleApprove)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrapf(core.ErrValidation, "decode transfer payload: %v", err)
	}
	if p.To == (common.Address{}) {
		return errors.Wrap(core.ErrValidation, "transfer to address required")
	}
	if err := Transfer(ctx.State, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From.Hex(),
		"to":     p.To.Hex(),
		"amount": p.Amount.String(),
	})
	return nil
}

func handleApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.Wrapf(core.ErrValidation, "decode approve payload: %v", err)
	}
	if p.Spender == (common.Address{}) {
		return errors.Wrap(core.ErrValidation, "spender required")
	}
	if err := Approve(ctx.State, ctx.Tx.From, p.Spender, p.Amount); err != nil {
		return err
	}
	ctx.Emit(events.EventTokenApprove, map[string]any{
		"owner":   ctx.Tx.From.Hex(),
		"spender": p.Spender.Hex(),
		"amount":  p.Amount.String(),
	})
	return nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.Wrap(core.ErrValidation, "amount must be > 0")
	}
	return nil
}

// Transfer moves amount from one account to another.
func Transfer(state core.State, from, to common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	sender, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return errors.Wrapf(core.ErrInsufficient, "balance of %s: have %s, need %s", from.Hex(), sender.Balance, amount)
	}
	sender.Balance.Sub(sender.Balance, amount)
	if err := state.SetAccount(sender); err != nil {
		return err
	}

	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	recipient.Balance.Add(recipient.Balance, amount)
	return state.SetAccount(recipient)
}

// Approve sets the amount spender may pull from owner. Zero revokes.
func Approve(state core.State, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(core.ErrValidation, "allowance must be >= 0")
	}
	return state.SetAllowance(owner, spender, amount)
}

// TransferFrom moves amount from holder to to, spending spender's allowance.
func TransferFrom(state core.State, spender, holder, to common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	allowance, err := state.GetAllowance(holder, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return errors.Wrapf(core.ErrInsufficient, "allowance of %s for %s: have %s, need %s",
			holder.Hex(), spender.Hex(), allowance, amount)
	}
	if err := state.SetAllowance(holder, spender, allowance.Sub(allowance, amount)); err != nil {
		return err
	}
	return Transfer(state, holder, to, amount)
}

// Burn destroys amount from holder and reduces the total supply.
func Burn(state core.State, holder common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	acc, err := state.GetAccount(holder)
	if err != nil {
		return err
	}
	if acc.Balance.Cmp(amount) < 0 {
		return errors.Wrapf(core.ErrInsufficient, "burn from %s: have %s, need %s", holder.Hex(), acc.Balance, amount)
	}
	acc.Balance.Sub(acc.Balance, amount)
	if err := state.SetAccount(acc); err != nil {
		return err
	}
	supply, err := state.GetSupply()
	if err != nil {
		return err
	}
	return state.SetSupply(supply.Sub(supply, amount))
}

// Mint creates amount for to. Only genesis calls it.
func Mint(state core.State, to common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	acc, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	acc.Balance.Add(acc.Balance, amount)
	if err := state.SetAccount(acc); err != nil {
		return err
	}
	supply, err := state.GetSupply()
	if err != nil {
		return err
	}
	return state.SetSupply(supply.Add(supply, amount))
}
