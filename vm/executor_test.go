package vm_test

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
	"github.com/ghostnet-labs/ghostnet/vm"

	_ "github.com/ghostnet-labs/ghostnet/vm/modules/token"
)

func TestNonceReplayRejected(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(10))

	tx := c.Tx(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})
	require.NoError(t, c.Exec.ExecuteTx(c.Block(), tx))
	err := c.Exec.ExecuteTx(c.Block(), tx)
	assert.ErrorIs(t, err, core.ErrReplay)
	testutil.EqualAmount(t, core.Tokens(1), c.Balance(bob.Address()))
}

func TestFeePaidToProposer(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(10))

	tx, err := core.NewTransaction(testutil.TestChainID, core.TxTransfer, alice.Address(), 0, 1000,
		core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(alice))
	require.NoError(t, c.Exec.ExecuteTx(c.Block(), tx))

	assert.Equal(t, int64(1000), c.Balance(c.Proposer.Address()).Int64())
	want := new(big.Int).Sub(core.Tokens(9), big.NewInt(1000))
	testutil.EqualAmount(t, want, c.Balance(alice.Address()))
}

func TestSuccessfulTxDropsItsSnapshot(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(10))

	for i := 0; i < 3; i++ {
		c.MustSend(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})
	}
	// No per-tx snapshot outlives its tx.
	id, err := c.State.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, id)
	testutil.EqualAmount(t, core.Tokens(3), c.Balance(bob.Address()))
}

func TestFailedTxRevertsEverything(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(1))

	var seen []events.EventType
	c.Emitter.SubscribeAll(func(ev events.Event) { seen = append(seen, ev.Type) })

	tx, err := core.NewTransaction(testutil.TestChainID, core.TxTransfer, alice.Address(), 0, 1000,
		core.TransferPayload{To: bob.Address(), Amount: core.Tokens(5)})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(alice))
	err = c.Exec.ExecuteTx(c.Block(), tx)
	assert.ErrorIs(t, err, core.ErrInsufficient)

	acc, err := c.State.GetAccount(alice.Address())
	require.NoError(t, err)
	assert.Zero(t, acc.Nonce, "nonce must roll back")
	testutil.EqualAmount(t, core.Tokens(1), acc.Balance, "fee must roll back")
	assert.Zero(t, c.Balance(c.Proposer.Address()).Sign())
	assert.Equal(t, []events.EventType{events.EventTxFailed}, seen)
}

func TestEventsPublishedOnSuccess(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(1))

	var got []events.Event
	c.Emitter.SubscribeAll(func(ev events.Event) { got = append(got, ev) })
	c.MustSend(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})

	require.Len(t, got, 2)
	assert.Equal(t, events.EventTokenTransfer, got[0].Type)
	assert.Equal(t, events.EventTxExecuted, got[1].Type)
	assert.Equal(t, got[0].TxID, got[1].TxID)
	assert.Equal(t, c.Height, got[0].BlockHeight)
}

func TestFailedEventCarriesKind(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice := testutil.NewKey(t)

	var kind any
	c.Emitter.Subscribe(events.EventTxFailed, func(ev events.Event) { kind = ev.Data["error_kind"] })
	err := c.Send(alice, core.TxType("no_such_type"), struct{}{})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, "validation", kind)
}

func TestWrongChainIDRejected(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(1))

	tx, err := core.NewTransaction("other-chain", core.TxTransfer, alice.Address(), 0, 0,
		core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})
	require.NoError(t, err)
	require.NoError(t, tx.Sign(alice))
	assert.ErrorIs(t, c.Exec.ExecuteTx(c.Block(), tx), core.ErrValidation)
}

func TestTamperedSignatureRejected(t *testing.T) {
	c := testutil.NewChain(t, testutil.NewKey(t).Address(), testutil.NewKey(t).Address())
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c.Fund(alice.Address(), core.Tokens(2))

	tx := c.Tx(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(1)})
	tx.Payload = json.RawMessage(`{"to":"` + bob.Address().Hex() + `","amount":2000000000000000000}`)
	assert.ErrorIs(t, c.Exec.ExecuteTx(c.Block(), tx), core.ErrAuthorization)
}

func TestRegistry(t *testing.T) {
	r := vm.NewRegistry()
	called := false
	r.Register("ping", func(*vm.Context, json.RawMessage) error {
		called = true
		return nil
	})
	assert.True(t, r.Has("ping"))
	assert.False(t, r.Has("pong"))
	require.NoError(t, r.Execute("ping", &vm.Context{}, nil))
	assert.True(t, called)

	err := r.Execute("pong", &vm.Context{}, nil)
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.Panics(t, func() { r.Register("ping", nil) })

	assert.True(t, vm.Registered(core.TxTransfer))
}
