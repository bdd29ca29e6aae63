package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ghostnet-labs/ghostnet/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // hash of state after executing this block
	TxRoot    string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64  `json:"timestamp"`  // unix nanoseconds
	Proposer  string `json:"proposer"`   // sequencer address hex
}

// Block is a collection of transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the Keccak-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs it with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) error {
	b.Hash = b.ComputeHash()
	sig, err := crypto.Sign(priv, common.FromHex(b.Hash))
	if err != nil {
		return fmt.Errorf("sign block %d: %w", b.Header.Height, err)
	}
	b.Signature = sig
	return nil
}

// Verify checks the block hash and that the signature was made by proposer.
func (b *Block) Verify(proposer common.Address) error {
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("block %d hash mismatch", b.Header.Height)
	}
	return crypto.Verify(proposer, common.FromHex(b.Hash), b.Signature)
}

// Time returns the block timestamp.
func (b *Block) Time() time.Time {
	return time.Unix(0, b.Header.Timestamp)
}

// ComputeTxRoot builds a deterministic root hash from all transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, []byte(tx.ID)...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block stamped with the current time.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return NewBlockAt(height, prevHash, proposer, time.Now().UnixNano(), txs)
}

// NewBlockAt creates an unsigned block with an explicit timestamp.
func NewBlockAt(height int64, prevHash, proposer string, timestamp int64, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: timestamp,
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}
