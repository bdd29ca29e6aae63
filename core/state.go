package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account holds a participant's payment-token balance and tx nonce.
type Account struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Nonce   uint64         `json:"nonce"`
}

// SystemConfig is the chain-wide configuration written at genesis.
type SystemConfig struct {
	ChainID   string         `json:"chain_id"`
	NetworkID uint64         `json:"network_id"` // environment id bound into arbiter signatures
	Admin     common.Address `json:"admin"`
	Treasury  common.Address `json:"treasury"`
}

// GameConfig is the per-engine stake and fee policy held by the ledger.
type GameConfig struct {
	ID           string   `json:"id"`
	MinStake     *big.Int `json:"min_stake"`
	MaxStake     *big.Int `json:"max_stake"`
	RakeBps      uint64   `json:"rake_bps"` // fee fraction of a gross entry
	BurnBps      uint64   `json:"burn_bps"` // fraction of the fee that is burned
	Active       bool     `json:"active"`
	Paused       bool     `json:"paused"`
	RegisteredAt int64    `json:"registered_at"`
}

// GameBook is the ledger's running account of one game's custody.
// Reserve and Liability are the house bankroll: Reserve is free, Liability
// is locked against open stakes.
type GameBook struct {
	GameID    string   `json:"game_id"`
	Gross     *big.Int `json:"gross"`
	Net       *big.Int `json:"net"`
	Burned    *big.Int `json:"burned"`
	Treasury  *big.Int `json:"treasury"`
	Credited  *big.Int `json:"credited"`
	Refunded  *big.Int `json:"refunded"`
	Reserve   *big.Int `json:"reserve"`
	Liability *big.Int `json:"liability"`
}

// NewGameBook returns a zeroed book for id.
func NewGameBook(id string) *GameBook {
	return &GameBook{
		GameID:    id,
		Gross:     new(big.Int),
		Net:       new(big.Int),
		Burned:    new(big.Int),
		Treasury:  new(big.Int),
		Credited:  new(big.Int),
		Refunded:  new(big.Int),
		Reserve:   new(big.Int),
		Liability: new(big.Int),
	}
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// System
	GetSystem() (*SystemConfig, error)
	SetSystem(cfg *SystemConfig) error

	// Payment asset
	GetAccount(addr common.Address) (*Account, error)
	SetAccount(account *Account) error
	GetAllowance(owner, spender common.Address) (*big.Int, error)
	SetAllowance(owner, spender common.Address, amount *big.Int) error
	GetSupply() (*big.Int, error)
	SetSupply(supply *big.Int) error

	// Ledger core
	GetGame(id string) (*GameConfig, error)
	SetGame(g *GameConfig) error
	GetGameBook(id string) (*GameBook, error)
	SetGameBook(b *GameBook) error
	GetPendingPayout(addr common.Address) (*big.Int, error)
	SetPendingPayout(addr common.Address, amount *big.Int) error

	// Nonce ledger. Append-only: there is no way to unmark a nonce.
	IsNonceUsed(scope string, nonce *big.Int) (bool, error)
	MarkNonceUsed(scope string, nonce *big.Int) error

	// Sequences
	GetCounter(name string) (uint64, error)
	SetCounter(name string, v uint64) error

	// Round engine
	GetRoundParams() (*RoundParams, error)
	SetRoundParams(p *RoundParams) error
	GetRound(id uint64) (*Round, error)
	SetRound(r *Round) error
	GetRoundStake(roundID uint64, player common.Address) (*RoundStake, error)
	SetRoundStake(s *RoundStake) error

	// Match engine
	GetMatchParams() (*MatchParams, error)
	SetMatchParams(p *MatchParams) error
	GetMatch(id uint64) (*Match, error)
	SetMatch(m *Match) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// DiscardSnapshot drops snapshot id and every later one, keeping writes.
	DiscardSnapshot(id int)
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
