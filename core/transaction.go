package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ghostnet-labs/ghostnet/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	// payment asset
	TxTransfer TxType = "transfer"
	TxApprove  TxType = "approve"

	// ledger core
	TxRegisterGame    TxType = "register_game"
	TxUpdateGame      TxType = "update_game"
	TxPauseGame       TxType = "pause_game"
	TxUnpauseGame     TxType = "unpause_game"
	TxSetGameActive   TxType = "set_game_active"
	TxWithdrawPayout  TxType = "withdraw_payout"
	TxFundReserve     TxType = "fund_reserve"
	TxWithdrawReserve TxType = "withdraw_reserve"

	// round engine
	TxSetRoundParams     TxType = "set_round_params"
	TxRoundOpen          TxType = "round_open"
	TxRoundCommit        TxType = "round_commit"
	TxRoundLock          TxType = "round_lock"
	TxRoundReveal        TxType = "round_reveal"
	TxRoundSettle        TxType = "round_settle"
	TxRoundSettleAll     TxType = "round_settle_all"
	TxRoundHandleExpired TxType = "round_handle_expired"
	TxRoundClaimRefund   TxType = "round_claim_refund"

	// match engine
	TxSetMatchParams       TxType = "set_match_params"
	TxMatchCreate          TxType = "match_create"
	TxMatchJoin            TxType = "match_join"
	TxMatchResult          TxType = "match_result"
	TxMatchClaimRefund     TxType = "match_claim_refund"
	TxMatchEmergencyCancel TxType = "match_emergency_cancel"
	TxMatchRotateArbiter   TxType = "match_rotate_arbiter"
)

// Transaction is the atomic unit of work on the chain.
// Signature is a recoverable secp256k1 signature over Hash(); the recovered
// address must equal From.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      common.Address  `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"` // base units paid to the block proposer
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      common.Address  `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hex hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) error {
	hash := tx.Hash()
	sig, err := crypto.Sign(priv, common.FromHex(hash))
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.ID = hash
	return nil
}

// Verify checks that the signature recovers to From.
func (tx *Transaction) Verify() error {
	if tx.From == (common.Address{}) {
		return errors.New("missing from field")
	}
	return crypto.Verify(tx.From, common.FromHex(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from common.Address, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves payment tokens.
type TransferPayload struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// ApprovePayload sets the allowance Spender may pull from the sender.
type ApprovePayload struct {
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// GamePolicyPayload registers or updates a game's stake and fee policy.
type GamePolicyPayload struct {
	GameID   string   `json:"game_id"`
	MinStake *big.Int `json:"min_stake"`
	MaxStake *big.Int `json:"max_stake"`
	RakeBps  uint64   `json:"rake_bps"`
	BurnBps  uint64   `json:"burn_bps"`
}

// GameRefPayload names a game for pause/unpause.
type GameRefPayload struct {
	GameID string `json:"game_id"`
}

// SetGameActivePayload activates or retires a game.
type SetGameActivePayload struct {
	GameID string `json:"game_id"`
	Active bool   `json:"active"`
}

// ReservePayload funds or drains a game's house reserve.
type ReservePayload struct {
	GameID string   `json:"game_id"`
	Amount *big.Int `json:"amount"`
}

// SetRoundParamsPayload replaces the round engine parameters.
type SetRoundParamsPayload struct {
	Params RoundParams `json:"params"`
}

// RoundCommitPayload enters the current round with a pre-committed target.
type RoundCommitPayload struct {
	Amount *big.Int `json:"amount"`
	Target uint64   `json:"target"` // hundredths: 250 = 2.50x
}

// RoundRefPayload names a round; zero means the current round.
type RoundRefPayload struct {
	RoundID uint64 `json:"round_id"`
}

// RoundPlayerPayload names a stake; a zero Player means the sender.
type RoundPlayerPayload struct {
	RoundID uint64         `json:"round_id"`
	Player  common.Address `json:"player"`
}

// SetMatchParamsPayload replaces tiers and timeouts. The arbiter is only
// changed through TxMatchRotateArbiter.
type SetMatchParamsPayload struct {
	Tiers         []*big.Int `json:"tiers"`
	JoinTimeout   int64      `json:"join_timeout"`
	ActiveTimeout int64      `json:"active_timeout"`
	TieBurnBps    uint64     `json:"tie_burn_bps"`
}

// MatchCreatePayload relays an arbiter-signed match creation.
type MatchCreatePayload struct {
	Player1   common.Address `json:"player1"`
	Player2   common.Address `json:"player2"`
	Tier      uint8          `json:"tier"`
	Nonce     *big.Int       `json:"nonce"`
	Signature string         `json:"signature"`
}

// MatchRefPayload names a match.
type MatchRefPayload struct {
	MatchID uint64 `json:"match_id"`
}

// MatchResultPayload relays an arbiter-signed match result.
type MatchResultPayload struct {
	MatchID   uint64         `json:"match_id"`
	Winner    common.Address `json:"winner"`
	Outcome   MatchOutcome   `json:"outcome"`
	Nonce     *big.Int       `json:"nonce"`
	Signature string         `json:"signature"`
}

// MatchCancelPayload is the admin escape hatch.
type MatchCancelPayload struct {
	MatchID uint64 `json:"match_id"`
	Reason  string `json:"reason"`
}

// RotateArbiterPayload installs a new arbiter signing address.
type RotateArbiterPayload struct {
	Arbiter common.Address `json:"arbiter"`
}
