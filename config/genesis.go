package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/vm/modules/ledger"
	"github.com/ghostnet-labs/ghostnet/vm/modules/match"
	"github.com/ghostnet-labs/ghostnet/vm/modules/round"
	"github.com/ghostnet-labs/ghostnet/vm/modules/token"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// GameGenesis registers a game at genesis. Amounts are decimal token strings.
type GameGenesis struct {
	ID       string `json:"id" toml:"id" yaml:"id"`
	MinStake string `json:"min_stake" toml:"min_stake" yaml:"min_stake"`
	MaxStake string `json:"max_stake" toml:"max_stake" yaml:"max_stake"`
	RakeBps  uint64 `json:"rake_bps" toml:"rake_bps" yaml:"rake_bps"`
	BurnBps  uint64 `json:"burn_bps" toml:"burn_bps" yaml:"burn_bps"`
	Reserve  string `json:"reserve,omitempty" toml:"reserve" yaml:"reserve"` // minted into custody
}

// MatchGenesis installs the match engine parameters and first arbiter.
type MatchGenesis struct {
	Arbiter       string   `json:"arbiter" toml:"arbiter" yaml:"arbiter"`
	Tiers         []string `json:"tiers" toml:"tiers" yaml:"tiers"`
	JoinTimeout   int64    `json:"join_timeout" toml:"join_timeout" yaml:"join_timeout"`
	ActiveTimeout int64    `json:"active_timeout" toml:"active_timeout" yaml:"active_timeout"`
	TieBurnBps    uint64   `json:"tie_burn_bps" toml:"tie_burn_bps" yaml:"tie_burn_bps"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID   string            `json:"chain_id" toml:"chain_id" yaml:"chain_id"`
	NetworkID uint64            `json:"network_id" toml:"network_id" yaml:"network_id"` // bound into arbiter signatures
	Timestamp int64             `json:"timestamp" toml:"timestamp" yaml:"timestamp"`    // unix seconds
	Admin     string            `json:"admin" toml:"admin" yaml:"admin"`
	Treasury  string            `json:"treasury" toml:"treasury" yaml:"treasury"`
	Alloc     map[string]string `json:"alloc" toml:"alloc" yaml:"alloc"` // address -> token amount
	Games     []GameGenesis     `json:"games" toml:"games" yaml:"games"`
	Round     *core.RoundParams `json:"round,omitempty" toml:"round" yaml:"round"`
	Match     *MatchGenesis     `json:"match,omitempty" toml:"match" yaml:"match"`
}

// Validate parses every address and amount without touching state.
func (g *GenesisConfig) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("genesis.chain_id is required")
	}
	if g.NetworkID == 0 {
		return fmt.Errorf("genesis.network_id is required")
	}
	if _, err := crypto.AddressFromHex(g.Admin); err != nil {
		return fmt.Errorf("genesis.admin: %w", err)
	}
	if _, err := crypto.AddressFromHex(g.Treasury); err != nil {
		return fmt.Errorf("genesis.treasury: %w", err)
	}
	for addr, amt := range g.Alloc {
		if _, err := crypto.AddressFromHex(addr); err != nil {
			return fmt.Errorf("genesis.alloc: %w", err)
		}
		if _, err := core.ParseTokens(amt); err != nil {
			return fmt.Errorf("genesis.alloc[%s]: %w", addr, err)
		}
	}
	for _, gg := range g.Games {
		p, err := gg.policy()
		if err != nil {
			return err
		}
		if err := ledger.ValidatePolicy(p); err != nil {
			return fmt.Errorf("genesis.games[%s]: %w", gg.ID, err)
		}
	}
	if g.Round != nil {
		if err := round.ValidateParams(g.Round); err != nil {
			return fmt.Errorf("genesis.round: %w", err)
		}
	}
	if g.Match != nil {
		if _, _, err := g.Match.params(); err != nil {
			return err
		}
	}
	return nil
}

func (gg GameGenesis) policy() (*core.GamePolicyPayload, error) {
	minStake, err := core.ParseTokens(gg.MinStake)
	if err != nil {
		return nil, fmt.Errorf("genesis.games[%s].min_stake: %w", gg.ID, err)
	}
	maxStake, err := core.ParseTokens(gg.MaxStake)
	if err != nil {
		return nil, fmt.Errorf("genesis.games[%s].max_stake: %w", gg.ID, err)
	}
	return &core.GamePolicyPayload{
		GameID:   gg.ID,
		MinStake: minStake,
		MaxStake: maxStake,
		RakeBps:  gg.RakeBps,
		BurnBps:  gg.BurnBps,
	}, nil
}

func (mg *MatchGenesis) params() (*core.SetMatchParamsPayload, common.Address, error) {
	arb, err := crypto.AddressFromHex(mg.Arbiter)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("genesis.match.arbiter: %w", err)
	}
	p := &core.SetMatchParamsPayload{
		JoinTimeout:   mg.JoinTimeout,
		ActiveTimeout: mg.ActiveTimeout,
		TieBurnBps:    mg.TieBurnBps,
	}
	for i, s := range mg.Tiers {
		v, err := core.ParseTokens(s)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("genesis.match.tiers[%d]: %w", i, err)
		}
		p.Tiers = append(p.Tiers, v)
	}
	if err := match.ValidateParams(p); err != nil {
		return nil, common.Address{}, fmt.Errorf("genesis.match: %w", err)
	}
	return p, arb, nil
}

// ApplyGenesis writes the initial state described by g. It does not commit.
func ApplyGenesis(g *GenesisConfig, state core.State) error {
	if err := g.Validate(); err != nil {
		return err
	}
	admin, _ := crypto.AddressFromHex(g.Admin)
	treasury, _ := crypto.AddressFromHex(g.Treasury)
	if err := state.SetSystem(&core.SystemConfig{
		ChainID:   g.ChainID,
		NetworkID: g.NetworkID,
		Admin:     admin,
		Treasury:  treasury,
	}); err != nil {
		return err
	}

	addrs := make([]string, 0, len(g.Alloc))
	for a := range g.Alloc {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		amt, _ := core.ParseTokens(g.Alloc[a])
		if amt.Sign() == 0 {
			continue
		}
		if err := token.Mint(state, common.HexToAddress(a), amt); err != nil {
			return fmt.Errorf("alloc %s: %w", a, err)
		}
	}

	for _, gg := range g.Games {
		p, _ := gg.policy()
		if _, err := ledger.RegisterGame(state, p, g.Timestamp); err != nil {
			return fmt.Errorf("register game %s: %w", gg.ID, err)
		}
		if gg.Reserve == "" {
			continue
		}
		reserve, err := core.ParseTokens(gg.Reserve)
		if err != nil {
			return fmt.Errorf("genesis.games[%s].reserve: %w", gg.ID, err)
		}
		if reserve.Sign() > 0 {
			if err := ledger.SeedReserve(state, gg.ID, reserve); err != nil {
				return fmt.Errorf("seed reserve %s: %w", gg.ID, err)
			}
		}
	}

	if g.Round != nil {
		if err := state.SetRoundParams(g.Round); err != nil {
			return err
		}
	}
	if g.Match != nil {
		p, arb, _ := g.Match.params()
		if err := state.SetMatchParams(&core.MatchParams{
			Arbiter:       arb,
			Tiers:         p.Tiers,
			JoinTimeout:   p.JoinTimeout,
			ActiveTimeout: p.ActiveTimeout,
			TieBurnBps:    p.TieBurnBps,
		}); err != nil {
			return err
		}
	}
	return nil
}

// CreateGenesisBlock applies the genesis state, commits it and returns the
// signed block #0.
func CreateGenesisBlock(cfg *Config, state core.State, proposer crypto.PrivateKey) (*core.Block, error) {
	if err := ApplyGenesis(&cfg.Genesis, state); err != nil {
		return nil, err
	}
	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlockAt(0, GenesisHash, proposer.Address().Hex(), cfg.Genesis.Timestamp*1e9, nil)
	block.Header.StateRoot = stateRoot
	// Genesis carries no transactions; TxRoot identifies the chain instead.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	if err := block.Sign(proposer); err != nil {
		return nil, err
	}
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}

