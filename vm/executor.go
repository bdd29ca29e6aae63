package vm

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/pkg/errors"
)

var vlog = log.New("module", "vm")

// Entropy resolves historical block hashes for commit-reveal games.
type Entropy interface {
	// BlockHash returns the hash of block target as seen from height current.
	BlockHash(target, current int64) ([]byte, error)
	// Expired reports whether target's hash can no longer be retrieved.
	Expired(target, current int64) bool
}

// Context is passed to every Handler and provides access to the chain state,
// the current block, the triggering transaction, the event emitter and the
// entropy source.
type Context struct {
	State   core.State
	Block   *core.Block
	Tx      *core.Transaction
	Emitter *events.Emitter
	Entropy Entropy

	pending []events.Event
}

// Now returns the block time in unix seconds.
func (c *Context) Now() int64 {
	return c.Block.Header.Timestamp / int64(time.Second)
}

// Height returns the height of the block being executed.
func (c *Context) Height() int64 {
	return c.Block.Header.Height
}

// Emit queues an event tagged with the current tx and block. Queued events
// are published only if the transaction succeeds.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Executor applies transactions to the state using the global Handler registry.
type Executor struct {
	state   core.State
	emitter *events.Emitter
	entropy Entropy
}

// NewExecutor creates an Executor with the given state, event emitter and
// entropy source.
func NewExecutor(state core.State, emitter *events.Emitter, entropy Entropy) *Executor {
	return &Executor{state: state, emitter: emitter, entropy: entropy}
}

// ExecuteBlock applies all transactions in block sequentially.
// A failing transaction causes the whole block to be rejected.
// EventBlockCommit is emitted by the caller (consensus) after signing so
// the event carries the correct block hash.
func (e *Executor) ExecuteBlock(block *core.Block) error {
	for _, tx := range block.Transactions {
		if err := e.ExecuteTx(block, tx); err != nil {
			return fmt.Errorf("tx %s failed: %w", tx.ID, err)
		}
	}
	return nil
}

// ExecuteTx verifies and executes a single transaction with snapshot/rollback.
// On failure the state is reverted and EventTxFailed carries the error kind.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	err := e.executeTx(block, tx)
	if err != nil {
		vlog.Debug("Transaction rejected", "tx", tx.ID, "type", tx.Type, "kind", core.ErrorKind(err), "err", err)
		e.emit(events.EventTxFailed, block, tx, map[string]any{
			"type":       string(tx.Type),
			"from":       tx.From.Hex(),
			"error_kind": core.ErrorKind(err),
			"error":      err.Error(),
		})
		return err
	}
	e.emit(events.EventTxExecuted, block, tx, map[string]any{
		"type": string(tx.Type),
		"from": tx.From.Hex(),
	})
	return nil
}

func (e *Executor) executeTx(block *core.Block, tx *core.Transaction) error {
	if err := tx.Verify(); err != nil {
		return errors.Wrapf(core.ErrAuthorization, "signature: %v", err)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	ctx, err := e.applyTx(block, tx)
	if err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	e.state.DiscardSnapshot(snapID)
	if e.emitter != nil {
		for _, ev := range ctx.pending {
			e.emitter.Emit(ev)
		}
	}
	return nil
}

func (e *Executor) emit(typ events.EventType, block *core.Block, tx *core.Transaction, data map[string]any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Event{
		Type:        typ,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        data,
	})
}

// applyTx checks the chain id, charges the fee to the proposer, increments
// the nonce, then dispatches to the handler.
func (e *Executor) applyTx(block *core.Block, tx *core.Transaction) (*Context, error) {
	if sys, err := e.state.GetSystem(); err == nil && tx.ChainID != sys.ChainID {
		return nil, errors.Wrapf(core.ErrValidation, "chain id %q does not match %q", tx.ChainID, sys.ChainID)
	}

	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return nil, errors.Wrapf(core.ErrReplay, "invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Nonce == math.MaxUint64 {
		return nil, errors.Wrapf(core.ErrValidation, "nonce overflow for account %s", tx.From.Hex())
	}
	fee := new(big.Int).SetUint64(tx.Fee)
	if acc.Balance.Cmp(fee) < 0 {
		return nil, errors.Wrapf(core.ErrInsufficient, "balance for fee: have %s need %s", acc.Balance, fee)
	}
	acc.Balance.Sub(acc.Balance, fee)
	acc.Nonce++
	if err := e.state.SetAccount(acc); err != nil {
		return nil, err
	}

	if fee.Sign() > 0 {
		proposer := common.HexToAddress(block.Header.Proposer)
		pacc, err := e.state.GetAccount(proposer)
		if err != nil {
			return nil, fmt.Errorf("get proposer account: %w", err)
		}
		pacc.Balance.Add(pacc.Balance, fee)
		if err := e.state.SetAccount(pacc); err != nil {
			return nil, err
		}
	}

	ctx := &Context{
		State:   e.state,
		Block:   block,
		Tx:      tx,
		Emitter: e.emitter,
		Entropy: e.entropy,
	}
	return ctx, globalRegistry.Execute(tx.Type, ctx, tx.Payload)
}
