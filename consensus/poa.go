// Package consensus implements single-sequencer Proof-of-Authority block
// production. The sequencer orders mempool transactions into blocks, drops
// the ones that fail, and signs each block; followers verify the signature
// before accepting it.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ghostnet-labs/ghostnet/config"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/entropy"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/vm"
)

var clog = log.New("module", "consensus")

// PoA is the Proof-of-Authority sequencer.
type PoA struct {
	cfg     *config.Config
	bc      *core.Blockchain
	state   core.State
	mempool *core.Mempool
	exec    *vm.Executor
	emitter *events.Emitter
	history *entropy.History
	privKey crypto.PrivateKey
	addr    common.Address
	now     func() time.Time
}

// New creates a PoA engine for the local sequencer identified by privKey.
// history may be nil, which limits entropy lookups to the native window.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	history *entropy.History,
	privKey crypto.PrivateKey,
) *PoA {
	return &PoA{
		cfg:     cfg,
		bc:      bc,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		history: history,
		privKey: privKey,
		addr:    privKey.Address(),
		now:     time.Now,
	}
}

// expectedProposer returns the validator scheduled for height. An empty
// validator set means the local key sequences every block.
func (p *PoA) expectedProposer(height int64) common.Address {
	if len(p.cfg.Validators) == 0 {
		return p.addr
	}
	return common.HexToAddress(p.cfg.Validators[int(height)%len(p.cfg.Validators)])
}

// IsProposer reports whether this node should propose the next block.
func (p *PoA) IsProposer() bool {
	return p.expectedProposer(p.bc.Height()+1) == p.addr
}

// ProduceBlock executes pending transactions in arrival order, keeps the
// ones that succeed, then signs and commits the block. Rejected
// transactions leave the mempool; their failure is published as
// EventTxFailed.
func (p *PoA) ProduceBlock() (*core.Block, error) {
	if !p.IsProposer() {
		return nil, errors.New("not the proposer for this height")
	}

	limit := p.cfg.MaxBlockTxs
	if limit <= 0 {
		limit = 500
	}
	txs := p.mempool.Pending(limit)

	tip := p.bc.Tip()
	prevHash := config.GenesisHash
	nextHeight := int64(0)
	ts := p.now().UnixNano()
	if tip != nil {
		prevHash = tip.Hash
		nextHeight = tip.Header.Height + 1
		if ts < tip.Header.Timestamp {
			ts = tip.Header.Timestamp
		}
	}

	block := core.NewBlockAt(nextHeight, prevHash, p.addr.Hex(), ts, nil)
	blockSnap, err := p.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	// abort drops this block's writes so they cannot leak into the next one.
	abort := func(err error) (*core.Block, error) {
		if rerr := p.state.RevertToSnapshot(blockSnap); rerr != nil {
			clog.Crit("Failed to discard writes of unsealed block", "height", nextHeight, "err", rerr)
		}
		return nil, err
	}
	included := make([]*core.Transaction, 0, len(txs))
	done := make([]string, 0, len(txs))
	for _, tx := range txs {
		done = append(done, tx.ID)
		if err := p.exec.ExecuteTx(block, tx); err != nil {
			clog.Debug("Dropped transaction", "tx", tx.ID, "type", tx.Type, "kind", core.ErrorKind(err), "err", err)
			continue
		}
		included = append(included, tx)
	}
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)

	// Root from the write buffer before flushing. A failed AddBlock rolls the
	// buffer back to blockSnap, so the mempool txs can be retried cleanly.
	block.Header.StateRoot = p.state.ComputeRoot()
	if err := block.Sign(p.privKey); err != nil {
		return abort(err)
	}
	if err := p.bc.AddBlock(block); err != nil {
		return abort(fmt.Errorf("add block: %w", err))
	}
	if err := p.state.Commit(); err != nil {
		clog.Crit("Block stored but state commit failed", "height", block.Header.Height, "err", err)
	}
	if p.history != nil {
		if err := p.history.Record(block.Header.Height, block.Hash); err != nil {
			clog.Error("Failed to record block hash", "height", block.Header.Height, "err", err)
		}
	}

	p.emitter.Emit(events.Event{
		Type:        events.EventBlockCommit,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"hash": block.Hash, "txs": len(included), "dropped": len(txs) - len(included)},
	})
	p.mempool.Remove(done)

	clog.Info("Sealed block", "height", block.Header.Height, "txs", len(included), "dropped", len(txs)-len(included), "hash", block.Hash)
	return block, nil
}

// ValidateBlock checks that block was proposed and signed by the expected
// sequencer and links to the current tip.
func (p *PoA) ValidateBlock(block *core.Block) error {
	expected := p.expectedProposer(block.Header.Height)
	if common.HexToAddress(block.Header.Proposer) != expected {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, expected.Hex())
	}
	if err := block.Verify(expected); err != nil {
		return fmt.Errorf("block signature invalid: %w", err)
	}

	tip := p.bc.Tip()
	if tip == nil {
		if !config.IsGenesisHash(block.Header.PrevHash) {
			return errors.New("first block must reference genesis prev-hash")
		}
		return nil
	}
	if block.Header.PrevHash != tip.Hash {
		return fmt.Errorf("prev_hash mismatch: got %s want %s", block.Header.PrevHash, tip.Hash)
	}
	if block.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("height mismatch: got %d want %d", block.Header.Height, tip.Header.Height+1)
	}
	return nil
}

// Run produces a block every interval until ctx is cancelled.
func (p *PoA) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsProposer() {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				clog.Error("Block production failed", "err", err)
			}
		}
	}
}
