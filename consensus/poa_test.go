package consensus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/config"
	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/entropy"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
	"github.com/ghostnet-labs/ghostnet/storage"
	"github.com/ghostnet-labs/ghostnet/vm"
)

type node struct {
	*PoA
	key     crypto.PrivateKey
	alice   crypto.PrivateKey
	state   *storage.StateDB
	emitter *events.Emitter
}

// failingStore refuses block commits while fail is set.
type failingStore struct {
	core.BlockStore
	fail bool
}

func (s *failingStore) CommitBlock(b *core.Block) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.BlockStore.CommitBlock(b)
}

func newNode(t *testing.T) *node {
	t.Helper()
	return newNodeWithStore(t, testutil.NewBlockStore())
}

func newNodeWithStore(t *testing.T, store core.BlockStore) *node {
	t.Helper()
	key, alice := testutil.NewKey(t), testutil.NewKey(t)
	cfg := config.DefaultConfig()
	cfg.Genesis.ChainID = "ghostnet-test"
	cfg.Genesis.Admin = key.Address().Hex()
	cfg.Genesis.Treasury = key.Address().Hex()
	cfg.Genesis.Alloc = map[string]string{alice.Address().Hex(): "100"}

	state := testutil.NewStateDB()
	bc := core.NewBlockchain(store)
	genesis, err := config.CreateGenesisBlock(cfg, state, key)
	require.NoError(t, err)
	require.NoError(t, bc.AddBlock(genesis))

	db := testutil.NewMemDB()
	history, err := entropy.NewHistory(db, 512)
	require.NoError(t, err)
	src, err := entropy.NewSource(bc, history, 0)
	require.NoError(t, err)

	emitter := events.NewEmitter()
	exec := vm.NewExecutor(state, emitter, src)
	p := New(cfg, bc, state, core.NewMempool(), exec, emitter, history, key)
	return &node{PoA: p, key: key, alice: alice, state: state, emitter: emitter}
}

func (n *node) submit(t *testing.T, from crypto.PrivateKey, nonce uint64, payload core.TransferPayload) *core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction("ghostnet-test", core.TxTransfer, from.Address(), nonce, 0, payload)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(from))
	require.NoError(t, n.mempool.Add(tx))
	return tx
}

func TestProduceBlockDropsFailingTxs(t *testing.T) {
	n := newNode(t)
	bob := testutil.NewKey(t)

	var failed []string
	n.emitter.Subscribe(events.EventTxFailed, func(ev events.Event) { failed = append(failed, ev.TxID) })

	good := n.submit(t, n.alice, 0, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(10)})
	bad := n.submit(t, bob, 0, core.TransferPayload{To: n.alice.Address(), Amount: core.Tokens(500)})
	replay := n.submit(t, n.alice, 0, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})

	block, err := n.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, good.ID, block.Transactions[0].ID)
	assert.Equal(t, []string{bad.ID, replay.ID}, failed)
	assert.Zero(t, n.mempool.Size())
	assert.Equal(t, int64(1), n.bc.Height())
	assert.Equal(t, core.ComputeTxRoot(block.Transactions), block.Header.TxRoot)

	acc, err := n.state.GetAccount(bob.Address())
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(10), acc.Balance)
	assert.Equal(t, n.state.ComputeRoot(), block.Header.StateRoot)
}

func TestFailedAddBlockDiscardsBlockWrites(t *testing.T) {
	store := &failingStore{BlockStore: testutil.NewBlockStore()}
	n := newNodeWithStore(t, store)
	bob := testutil.NewKey(t)
	rootBefore := n.state.ComputeRoot()

	tx := n.submit(t, n.alice, 0, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(10)})
	store.fail = true
	_, err := n.ProduceBlock()
	require.Error(t, err)
	assert.Equal(t, int64(0), n.bc.Height())
	assert.Equal(t, rootBefore, n.state.ComputeRoot())
	acc, err := n.state.GetAccount(n.alice.Address())
	require.NoError(t, err)
	assert.Zero(t, acc.Nonce)
	testutil.EqualAmount(t, core.Tokens(100), acc.Balance)

	// The tx stays queued and lands once the store recovers.
	store.fail = false
	block, err := n.ProduceBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, tx.ID, block.Transactions[0].ID)
	acc, err = n.state.GetAccount(bob.Address())
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(10), acc.Balance)
}

func TestProduceBlockRecordsEntropyHistory(t *testing.T) {
	n := newNode(t)
	block, err := n.ProduceBlock()
	require.NoError(t, err)

	got, err := n.history.Get(block.Header.Height)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex(block.Hash), got)
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	n := newNode(t)
	first, err := n.ProduceBlock()
	require.NoError(t, err)

	n.now = func() time.Time { return time.Unix(0, first.Header.Timestamp).Add(-time.Hour) }
	second, err := n.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, first.Header.Timestamp, second.Header.Timestamp)
}

func TestOnlyScheduledProposerProduces(t *testing.T) {
	n := newNode(t)
	n.cfg.Validators = []string{testutil.NewKey(t).Address().Hex()}
	assert.False(t, n.IsProposer())
	_, err := n.ProduceBlock()
	assert.Error(t, err)
}

func TestValidateBlock(t *testing.T) {
	n := newNode(t)
	tip := n.bc.Tip()

	next := core.NewBlockAt(tip.Header.Height+1, tip.Hash, n.key.Address().Hex(), tip.Header.Timestamp, nil)
	require.NoError(t, next.Sign(n.key))
	require.NoError(t, n.ValidateBlock(next))

	stray := core.NewBlockAt(tip.Header.Height+1, "beef", n.key.Address().Hex(), tip.Header.Timestamp, nil)
	require.NoError(t, stray.Sign(n.key))
	assert.Error(t, n.ValidateBlock(stray))

	other := testutil.NewKey(t)
	forged := core.NewBlockAt(tip.Header.Height+1, tip.Hash, n.key.Address().Hex(), tip.Header.Timestamp, nil)
	require.NoError(t, forged.Sign(other))
	assert.Error(t, n.ValidateBlock(forged))
}

func TestRunStopsOnCancel(t *testing.T) {
	n := newNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		n.Run(ctx, 5*time.Millisecond)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return n.bc.Height() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
