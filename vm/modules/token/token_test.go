package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
)

func TestTransferMovesBalance(t *testing.T) {
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c := testutil.NewChain(t, alice.Address(), alice.Address())
	c.Fund(alice.Address(), core.Tokens(100))

	c.MustSend(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(30)})

	testutil.EqualAmount(t, core.Tokens(70), c.Balance(alice.Address()))
	testutil.EqualAmount(t, core.Tokens(30), c.Balance(bob.Address()))
}

func TestTransferRejectsOverdraftAndZero(t *testing.T) {
	alice, bob := testutil.NewKey(t), testutil.NewKey(t)
	c := testutil.NewChain(t, alice.Address(), alice.Address())
	c.Fund(alice.Address(), core.Tokens(1))

	err := c.Send(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(2)})
	assert.ErrorIs(t, err, core.ErrInsufficient)

	err = c.Send(alice, core.TxTransfer, core.TransferPayload{To: bob.Address(), Amount: core.Tokens(0)})
	assert.ErrorIs(t, err, core.ErrValidation)

	testutil.EqualAmount(t, core.Tokens(1), c.Balance(alice.Address()))
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	owner, spender, sink := testutil.NewKey(t), testutil.NewKey(t), testutil.NewKey(t)
	c := testutil.NewChain(t, owner.Address(), owner.Address())
	c.Fund(owner.Address(), core.Tokens(10))
	c.MustSend(owner, core.TxApprove, core.ApprovePayload{Spender: spender.Address(), Amount: core.Tokens(4)})

	require.NoError(t, TransferFrom(c.State, spender.Address(), owner.Address(), sink.Address(), core.Tokens(3)))
	left, err := c.State.GetAllowance(owner.Address(), spender.Address())
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(1), left)

	err = TransferFrom(c.State, spender.Address(), owner.Address(), sink.Address(), core.Tokens(2))
	assert.ErrorIs(t, err, core.ErrInsufficient)
	testutil.EqualAmount(t, core.Tokens(3), c.Balance(sink.Address()))
}

func TestBurnReducesSupply(t *testing.T) {
	owner := testutil.NewKey(t)
	c := testutil.NewChain(t, owner.Address(), owner.Address())
	require.NoError(t, Mint(c.State, owner.Address(), core.Tokens(10)))

	require.NoError(t, Burn(c.State, owner.Address(), core.Tokens(4)))

	supply, err := c.State.GetSupply()
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(6), supply)
	testutil.EqualAmount(t, core.Tokens(6), c.Balance(owner.Address()))
}
