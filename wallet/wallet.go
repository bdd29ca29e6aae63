package wallet

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
)

// Wallet holds a key and builds signed transactions for one chain.
type Wallet struct {
	priv    crypto.PrivateKey
	chainID string
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key.
func Generate(chainID string) (*Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.priv.Address()
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.Address(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(w.priv); err != nil {
		return nil, err
	}
	return tx, nil
}

// Transfer creates a signed transfer.
func (w *Wallet) Transfer(to common.Address, amount *big.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{To: to, Amount: amount})
}

// ApproveCustody lets the ledger pull up to amount for stakes.
func (w *Wallet) ApproveCustody(amount *big.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxApprove, nonce, fee, core.ApprovePayload{Spender: ledger.Custody, Amount: amount})
}

// Commit enters the current round at target (hundredths of a multiplier).
func (w *Wallet) Commit(amount *big.Int, target uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRoundCommit, nonce, fee, core.RoundCommitPayload{Amount: amount, Target: target})
}

// ClaimRoundRefund reclaims the sender's stake in an expired round.
func (w *Wallet) ClaimRoundRefund(roundID uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRoundClaimRefund, nonce, fee, core.RoundPlayerPayload{RoundID: roundID})
}

// JoinMatch stakes the sender's side of a created match.
func (w *Wallet) JoinMatch(matchID uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxMatchJoin, nonce, fee, core.MatchRefPayload{MatchID: matchID})
}

// ClaimMatchRefund reclaims stakes from a timed-out match.
func (w *Wallet) ClaimMatchRefund(matchID uint64, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxMatchClaimRefund, nonce, fee, core.MatchRefPayload{MatchID: matchID})
}

// WithdrawPayout moves every pending payout to the sender's balance.
func (w *Wallet) WithdrawPayout(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxWithdrawPayout, nonce, fee, struct{}{})
}
