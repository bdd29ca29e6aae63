package testutil

import (
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/storage"
	"github.com/ghostnet-labs/ghostnet/vm"
)

// TestChainID is the chain id used by Chain.
const TestChainID = "ghostnet-test"

// Entropy is a vm.Entropy with a fixed lookback window. Unless overridden
// with SetHash, the hash of height h is keccak256("block" || h).
type Entropy struct {
	Window int64
	hashes map[int64][]byte
}

// NewEntropy returns an Entropy with the native 256-block window.
func NewEntropy() *Entropy {
	return &Entropy{Window: 256, hashes: make(map[int64][]byte)}
}

// SetHash pins the hash returned for height.
func (e *Entropy) SetHash(height int64, hash []byte) {
	e.hashes[height] = hash
}

func (e *Entropy) BlockHash(target, current int64) ([]byte, error) {
	if target >= current {
		return nil, errors.Wrapf(core.ErrTiming, "block %d not mined at height %d", target, current)
	}
	if e.Expired(target, current) {
		return nil, errors.Wrapf(core.ErrTiming, "block %d outside lookback window", target)
	}
	if h, ok := e.hashes[target]; ok {
		return h, nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(target))
	return crypto.HashBytes([]byte("block"), buf[:]), nil
}

func (e *Entropy) Expired(target, current int64) bool {
	return current-target > e.Window
}

// Chain runs signed transactions through a real Executor over an in-memory
// StateDB. Every Send executes in a block at the current Height and Time.
type Chain struct {
	t        testing.TB
	State    *storage.StateDB
	Emitter  *events.Emitter
	Entropy  *Entropy
	Exec     *vm.Executor
	Proposer crypto.PrivateKey
	Height   int64
	Time     time.Time
}

// NewChain returns a chain at height 1 with the system config installed.
func NewChain(t testing.TB, admin, treasury common.Address) *Chain {
	t.Helper()
	proposer := NewKey(t)
	c := &Chain{
		t:        t,
		State:    NewStateDB(),
		Emitter:  events.NewEmitter(),
		Entropy:  NewEntropy(),
		Proposer: proposer,
		Height:   1,
		Time:     time.Unix(1_700_000_000, 0),
	}
	c.Exec = vm.NewExecutor(c.State, c.Emitter, c.Entropy)
	require.NoError(t, c.State.SetSystem(&core.SystemConfig{
		ChainID:   TestChainID,
		NetworkID: 1,
		Admin:     admin,
		Treasury:  treasury,
	}))
	return c
}

// NewKey generates a fresh secp256k1 key.
func NewKey(t testing.TB) crypto.PrivateKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

// Fund mints amount to addr outside of any transaction.
func (c *Chain) Fund(addr common.Address, amount *big.Int) {
	c.t.Helper()
	acc, err := c.State.GetAccount(addr)
	require.NoError(c.t, err)
	acc.Balance.Add(acc.Balance, amount)
	require.NoError(c.t, c.State.SetAccount(acc))
	supply, err := c.State.GetSupply()
	require.NoError(c.t, err)
	require.NoError(c.t, c.State.SetSupply(supply.Add(supply, amount)))
}

// Balance returns addr's token balance.
func (c *Chain) Balance(addr common.Address) *big.Int {
	c.t.Helper()
	acc, err := c.State.GetAccount(addr)
	require.NoError(c.t, err)
	return acc.Balance
}

// Advance moves the chain forward by blocks and d.
func (c *Chain) Advance(blocks int64, d time.Duration) {
	c.Height += blocks
	c.Time = c.Time.Add(d)
}

// Block returns an empty block at the current height and time.
func (c *Chain) Block() *core.Block {
	return core.NewBlockAt(c.Height, "", c.Proposer.Address().Hex(), c.Time.UnixNano(), nil)
}

// Tx builds and signs a transaction from priv using its next nonce.
func (c *Chain) Tx(priv crypto.PrivateKey, typ core.TxType, payload any) *core.Transaction {
	c.t.Helper()
	acc, err := c.State.GetAccount(priv.Address())
	require.NoError(c.t, err)
	tx, err := core.NewTransaction(TestChainID, typ, priv.Address(), acc.Nonce, 0, payload)
	require.NoError(c.t, err)
	tx.Timestamp = c.Time.UnixNano()
	require.NoError(c.t, tx.Sign(priv))
	return tx
}

// Send signs and executes one transaction, returning the handler error.
func (c *Chain) Send(priv crypto.PrivateKey, typ core.TxType, payload any) error {
	c.t.Helper()
	tx := c.Tx(priv, typ, payload)
	return c.Exec.ExecuteTx(c.Block(), tx)
}

// MustSend is Send that fails the test on error.
func (c *Chain) MustSend(priv crypto.PrivateKey, typ core.TxType, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.Send(priv, typ, payload))
}

// EqualAmount asserts that got equals want by value.
func EqualAmount(t testing.TB, want, got *big.Int, msgAndArgs ...any) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	require.Equal(t, want.String(), got.String(), msgAndArgs...)
}
