package storage

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
)

func openLevelDB(t *testing.T) *LevelDB {
	t.Helper()
	db, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestLevelDBBasics(t *testing.T) {
	db := openLevelDB(t)
	_, err := db.Get([]byte("missing"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, db.Set([]byte("p:1"), []byte("a")))
	require.NoError(t, db.Set([]byte("p:2"), []byte("b")))
	require.NoError(t, db.Set([]byte("q:1"), []byte("c")))

	it := db.NewIterator([]byte("p:"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"p:1", "p:2"}, keys)

	b := db.NewBatch()
	b.Delete([]byte("p:1"))
	b.Set([]byte("p:3"), []byte("d"))
	require.NoError(t, b.Write())
	_, err = db.Get([]byte("p:1"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	v, err := db.Get([]byte("p:3"))
	require.NoError(t, err)
	assert.Equal(t, "d", string(v))
}

func TestStateDefaults(t *testing.T) {
	s := NewStateDB(openLevelDB(t))

	acc, err := s.GetAccount(alice)
	require.NoError(t, err)
	assert.Equal(t, alice, acc.Address)
	assert.Zero(t, acc.Balance.Sign())

	book, err := s.GetGameBook("round")
	require.NoError(t, err)
	assert.Zero(t, book.Reserve.Sign())

	n, err := s.GetCounter("round")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetGame("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetRound(1)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetMatchParams()
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Error(t, s.SetPendingPayout(alice, big.NewInt(-1)))
}

func TestSnapshotRevert(t *testing.T) {
	s := NewStateDB(openLevelDB(t))
	require.NoError(t, s.SetAccount(&core.Account{Address: alice, Balance: big.NewInt(10)}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: alice, Balance: big.NewInt(3)}))
	require.NoError(t, s.MarkNonceUsed("arbiter", big.NewInt(9)))
	require.NoError(t, s.RevertToSnapshot(snap))

	acc, err := s.GetAccount(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.Balance.Int64())
	used, err := s.IsNonceUsed("arbiter", big.NewInt(9))
	require.NoError(t, err)
	assert.False(t, used)

	assert.Error(t, s.RevertToSnapshot(snap), "snapshot is consumed")
}

func TestDiscardSnapshotKeepsWrites(t *testing.T) {
	s := NewStateDB(openLevelDB(t))
	outer, err := s.Snapshot()
	require.NoError(t, err)
	inner, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: alice, Balance: big.NewInt(7)}))
	s.DiscardSnapshot(inner)

	assert.Error(t, s.RevertToSnapshot(inner), "discarded")
	acc, err := s.GetAccount(alice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acc.Balance.Int64())

	// Earlier snapshots survive a discard.
	require.NoError(t, s.RevertToSnapshot(outer))
	acc, err = s.GetAccount(alice)
	require.NoError(t, err)
	assert.Zero(t, acc.Balance.Sign())
}

func TestNonceScopes(t *testing.T) {
	s := NewStateDB(openLevelDB(t))
	require.NoError(t, s.MarkNonceUsed("arbiter", big.NewInt(1)))
	used, err := s.IsNonceUsed("arbiter", big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, used)
	used, err = s.IsNonceUsed("other", big.NewInt(1))
	require.NoError(t, err)
	assert.False(t, used)
}

func TestRootCoversBufferAndDisk(t *testing.T) {
	db := openLevelDB(t)
	s := NewStateDB(db)
	empty := s.ComputeRoot()

	require.NoError(t, s.SetAccount(&core.Account{Address: alice, Balance: big.NewInt(5)}))
	require.NoError(t, s.SetRoundStake(&core.RoundStake{RoundID: 1, Player: bob, Gross: big.NewInt(2)}))
	dirtyRoot := s.ComputeRoot()
	assert.NotEqual(t, empty, dirtyRoot)

	require.NoError(t, s.Commit())
	assert.Equal(t, dirtyRoot, s.ComputeRoot(), "commit must not change the root")

	reopened := NewStateDB(db)
	assert.Equal(t, dirtyRoot, reopened.ComputeRoot())
	st, err := reopened.GetRoundStake(1, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Gross.Int64())
}

func TestRootIndependentOfWriteOrder(t *testing.T) {
	a := NewStateDB(openLevelDB(t))
	b := NewStateDB(openLevelDB(t))

	require.NoError(t, a.SetPendingPayout(alice, big.NewInt(1)))
	require.NoError(t, a.SetPendingPayout(bob, big.NewInt(2)))
	require.NoError(t, b.SetPendingPayout(bob, big.NewInt(2)))
	require.NoError(t, b.SetPendingPayout(alice, big.NewInt(1)))
	assert.Equal(t, a.ComputeRoot(), b.ComputeRoot())
}

func TestBlockStore(t *testing.T) {
	store := NewBlockStore(openLevelDB(t))
	tip, err := store.GetTip()
	require.NoError(t, err)
	assert.Empty(t, tip)

	block := core.NewBlockAt(0, "", alice.Hex(), 1, nil)
	block.Hash = block.ComputeHash()
	require.NoError(t, store.CommitBlock(block))

	tip, err = store.GetTip()
	require.NoError(t, err)
	assert.Equal(t, block.Hash, tip)
	got, err := store.GetBlockByHeight(0)
	require.NoError(t, err)
	assert.Equal(t, block.Header, got.Header)
}
