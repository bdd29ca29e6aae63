package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/internal/testutil"
	"github.com/ghostnet-labs/ghostnet/vm"
)

type fixture struct {
	*testutil.Chain
	admin, treasury, player crypto.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		admin:    testutil.NewKey(t),
		treasury: testutil.NewKey(t),
		player:   testutil.NewKey(t),
	}
	f.Chain = testutil.NewChain(t, f.admin.Address(), f.treasury.Address())
	f.MustSend(f.admin, core.TxRegisterGame, duelPolicy())
	f.Fund(f.player.Address(), core.Tokens(1000))
	f.MustSend(f.player, core.TxApprove, core.ApprovePayload{Spender: Custody, Amount: core.Tokens(1000)})
	return f
}

// duelPolicy is a 10% rake with half of it burned.
func duelPolicy() core.GamePolicyPayload {
	return core.GamePolicyPayload{
		GameID:   "duel",
		MinStake: core.Tokens(1),
		MaxStake: core.Tokens(100),
		RakeBps:  1000,
		BurnBps:  5000,
	}
}

func (f *fixture) vmContext() *vm.Context {
	return &vm.Context{
		State: f.State,
		Block: f.Block(),
		Tx:    &core.Transaction{ID: "direct", From: f.player.Address()},
	}
}

func TestRegisterGameRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	p := duelPolicy()
	p.GameID = "other"
	err := f.Send(f.player, core.TxRegisterGame, p)
	assert.ErrorIs(t, err, core.ErrAuthorization)
}

func TestRegisterGameRejectsDuplicateAndMalformed(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.Send(f.admin, core.TxRegisterGame, duelPolicy()), core.ErrState)

	bad := duelPolicy()
	bad.GameID = "bad"
	bad.RakeBps = 10_001
	assert.ErrorIs(t, f.Send(f.admin, core.TxRegisterGame, bad), core.ErrValidation)

	bad = duelPolicy()
	bad.GameID = "bad"
	bad.MinStake = core.Tokens(200)
	assert.ErrorIs(t, f.Send(f.admin, core.TxRegisterGame, bad), core.ErrValidation)
}

func TestProcessEntrySplitsFee(t *testing.T) {
	f := newFixture(t)
	supplyBefore, err := f.State.GetSupply()
	require.NoError(t, err)
	supplyBefore = new(big.Int).Set(supplyBefore)

	entry, err := ProcessEntry(f.vmContext(), "duel", f.player.Address(), core.Tokens(50))
	require.NoError(t, err)

	testutil.EqualAmount(t, core.Tokens(5), entry.Fee)
	testutil.EqualAmount(t, core.Tokens(45), entry.Net)
	half, _ := core.ParseTokens("2.5")
	testutil.EqualAmount(t, half, entry.Burned)
	testutil.EqualAmount(t, half, entry.Treasury)

	testutil.EqualAmount(t, core.Tokens(45), f.Balance(Custody))
	testutil.EqualAmount(t, half, f.Balance(f.treasury.Address()))
	testutil.EqualAmount(t, core.Tokens(950), f.Balance(f.player.Address()))

	supply, err := f.State.GetSupply()
	require.NoError(t, err)
	testutil.EqualAmount(t, new(big.Int).Sub(supplyBefore, half), supply)

	book, err := f.State.GetGameBook("duel")
	require.NoError(t, err)
	sum := new(big.Int).Add(book.Net, book.Burned)
	testutil.EqualAmount(t, book.Gross, sum.Add(sum, book.Treasury), "net + fee == gross")
}

func TestProcessEntryStakeBounds(t *testing.T) {
	f := newFixture(t)
	_, err := ProcessEntry(f.vmContext(), "duel", f.player.Address(), core.Tokens(101))
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = ProcessEntry(f.vmContext(), "missing", f.player.Address(), core.Tokens(10))
	assert.ErrorIs(t, err, core.ErrState)
}

func TestPauseBlocksEntryButNotCredit(t *testing.T) {
	f := newFixture(t)
	f.MustSend(f.admin, core.TxPauseGame, core.GameRefPayload{GameID: "duel"})

	_, err := ProcessEntry(f.vmContext(), "duel", f.player.Address(), core.Tokens(10))
	assert.ErrorIs(t, err, core.ErrState)

	require.NoError(t, CreditPayout(f.vmContext(), "duel", f.player.Address(), core.Tokens(3)))
	pending, err := f.State.GetPendingPayout(f.player.Address())
	require.NoError(t, err)
	testutil.EqualAmount(t, core.Tokens(3), pending)

	assert.ErrorIs(t, f.Send(f.admin, core.TxPauseGame, core.GameRefPayload{GameID: "duel"}), core.ErrState)
	f.MustSend(f.admin, core.TxUnpauseGame, core.GameRefPayload{GameID: "duel"})
	_, err = ProcessEntry(f.vmContext(), "duel", f.player.Address(), core.Tokens(10))
	assert.NoError(t, err)
}

func TestWithdrawPayoutZeroesBeforeTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := f.vmContext()
	_, err := ProcessEntry(ctx, "duel", f.player.Address(), core.Tokens(50))
	require.NoError(t, err)
	require.NoError(t, CreditPayout(ctx, "duel", f.player.Address(), core.Tokens(45)))

	f.MustSend(f.player, core.TxWithdrawPayout, struct{}{})
	testutil.EqualAmount(t, core.Tokens(995), f.Balance(f.player.Address()))
	pending, err := f.State.GetPendingPayout(f.player.Address())
	require.NoError(t, err)
	assert.Zero(t, pending.Sign())

	// A second withdrawal of an empty balance is a no-op.
	f.MustSend(f.player, core.TxWithdrawPayout, struct{}{})
	testutil.EqualAmount(t, core.Tokens(995), f.Balance(f.player.Address()))
	assert.Zero(t, f.Balance(Custody).Sign())
}

func TestReserveFundLockAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.MustSend(f.player, core.TxFundReserve, core.ReservePayload{GameID: "duel", Amount: core.Tokens(100)})

	ctx := f.vmContext()
	require.NoError(t, LockLiability(ctx, "duel", core.Tokens(60)))
	assert.ErrorIs(t, LockLiability(ctx, "duel", core.Tokens(41)), core.ErrInsufficient)

	err := f.Send(f.admin, core.TxWithdrawReserve, core.ReservePayload{GameID: "duel", Amount: core.Tokens(41)})
	assert.ErrorIs(t, err, core.ErrInsufficient)

	require.NoError(t, ReleaseLiability(ctx, "duel", core.Tokens(60)))
	f.MustSend(f.admin, core.TxWithdrawReserve, core.ReservePayload{GameID: "duel", Amount: core.Tokens(100)})
	testutil.EqualAmount(t, core.Tokens(100), f.Balance(f.treasury.Address()))

	book, err := f.State.GetGameBook("duel")
	require.NoError(t, err)
	assert.Zero(t, book.Reserve.Sign())
	assert.Zero(t, book.Liability.Sign())
}

func TestRefundTransfersFromCustody(t *testing.T) {
	f := newFixture(t)
	ctx := f.vmContext()
	entry, err := ProcessEntry(ctx, "duel", f.player.Address(), core.Tokens(20))
	require.NoError(t, err)

	require.NoError(t, Refund(ctx, "duel", f.player.Address(), entry.Net))
	testutil.EqualAmount(t, core.Tokens(998), f.Balance(f.player.Address()))
	assert.Zero(t, f.Balance(Custody).Sign())
}

func TestRefundOfZeroIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := f.vmContext()
	require.NoError(t, Refund(ctx, "duel", f.player.Address(), new(big.Int)))
	testutil.EqualAmount(t, core.Tokens(1000), f.Balance(f.player.Address()))
	book, err := f.State.GetGameBook("duel")
	require.NoError(t, err)
	assert.Zero(t, book.Refunded.Sign())
	assert.Error(t, Refund(ctx, "duel", f.player.Address(), big.NewInt(-1)))
}
