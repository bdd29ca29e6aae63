package core

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Engine identifiers under which the ledger registers game policy.
const (
	GameRound = "round"
	GameMatch = "match"
)

// RoundState is the round engine life cycle.
type RoundState string

const (
	RoundBetting   RoundState = "BETTING"
	RoundLocked    RoundState = "LOCKED"
	RoundActive    RoundState = "ACTIVE"
	RoundSettled   RoundState = "SETTLED"
	RoundCancelled RoundState = "CANCELLED"
	RoundExpired   RoundState = "EXPIRED"
)

// Terminal reports whether no further round transition exists.
func (s RoundState) Terminal() bool {
	return s == RoundSettled || s == RoundCancelled || s == RoundExpired
}

// RoundParams configures the round engine.
type RoundParams struct {
	BettingWindow int64  `json:"betting_window" toml:"betting_window" yaml:"betting_window"` // seconds
	MaxPlayers    uint32 `json:"max_players" toml:"max_players" yaml:"max_players"`
	RevealDelay   int64  `json:"reveal_delay" toml:"reveal_delay" yaml:"reveal_delay"` // blocks between lock and entropy block
}

// Round is one instance of the multiplier game.
type Round struct {
	ID            uint64           `json:"id"`
	State         RoundState       `json:"state"`
	Players       []common.Address `json:"players"`
	MaxPlayers    uint32           `json:"max_players"`
	Pool          *big.Int         `json:"pool"`      // sum of net stakes
	Liability     *big.Int         `json:"liability"` // reserve locked for potential wins
	OpenedAt      int64            `json:"opened_at"`
	BettingEndsAt int64            `json:"betting_ends_at"`
	LockedAt      int64            `json:"locked_at,omitempty"`
	EntropyBlock  int64            `json:"entropy_block,omitempty"`
	EntropyHash   string           `json:"entropy_hash,omitempty"`
	Outcome       uint64           `json:"outcome,omitempty"` // hundredths
	RevealedAt    int64            `json:"revealed_at,omitempty"`
	Resolved      int              `json:"resolved"`
	ClosedAt      int64            `json:"closed_at,omitempty"`
}

// RoundStake is one participant's entry in a round.
type RoundStake struct {
	RoundID   uint64         `json:"round_id"`
	Player    common.Address `json:"player"`
	Gross     *big.Int       `json:"gross"`
	Net       *big.Int       `json:"net"`
	Target    uint64         `json:"target"`
	Liability *big.Int       `json:"liability"`
	Resolved  bool           `json:"resolved"`
	Won       bool           `json:"won"`
	Payout    *big.Int       `json:"payout"`
	Refunded  bool           `json:"refunded"`
}

// MatchState is the match engine life cycle.
type MatchState string

const (
	MatchCreated   MatchState = "CREATED"
	MatchWaiting   MatchState = "WAITING"
	MatchActive    MatchState = "ACTIVE"
	MatchResolved  MatchState = "RESOLVED"
	MatchCancelled MatchState = "CANCELLED"
)

// Open reports whether the match may still be cancelled.
func (s MatchState) Open() bool {
	return s == MatchCreated || s == MatchWaiting || s == MatchActive
}

// MatchOutcome classifies an arbiter result. The numeric value is part of
// the signed result message.
type MatchOutcome uint8

const (
	OutcomeNone MatchOutcome = iota
	OutcomeWin
	OutcomeTie
	OutcomeForfeit
	OutcomeTimeout
)

var outcomeNames = map[MatchOutcome]string{
	OutcomeNone:    "NONE",
	OutcomeWin:     "WIN",
	OutcomeTie:     "TIE",
	OutcomeForfeit: "FORFEIT",
	OutcomeTimeout: "TIMEOUT",
}

func (o MatchOutcome) String() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OUTCOME(%d)", uint8(o))
}

// ParseOutcome parses an outcome name, case-insensitively.
func ParseOutcome(s string) (MatchOutcome, error) {
	for o, n := range outcomeNames {
		if o != OutcomeNone && strings.EqualFold(n, s) {
			return o, nil
		}
	}
	return OutcomeNone, fmt.Errorf("unknown outcome %q", s)
}

func (o MatchOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *MatchOutcome) UnmarshalText(b []byte) error {
	if string(b) == "NONE" {
		*o = OutcomeNone
		return nil
	}
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// MatchParams configures the match engine.
type MatchParams struct {
	Arbiter       common.Address `json:"arbiter"`
	Tiers         []*big.Int     `json:"tiers"`          // tier index -> gross stake per player
	JoinTimeout   int64          `json:"join_timeout"`   // seconds from creation
	ActiveTimeout int64          `json:"active_timeout"` // seconds from activation
	TieBurnBps    uint64         `json:"tie_burn_bps"`
}

// Match is a two-party escrow resolved by the arbiter.
type Match struct {
	ID             uint64         `json:"id"`
	Player1        common.Address `json:"player1"`
	Player2        common.Address `json:"player2"`
	Tier           uint8          `json:"tier"`
	Stake          *big.Int       `json:"stake"` // gross deposit per player
	State          MatchState     `json:"state"`
	Joined1        bool           `json:"joined1"`
	Joined2        bool           `json:"joined2"`
	Net1           *big.Int       `json:"net1"`
	Net2           *big.Int       `json:"net2"`
	Refunded1      bool           `json:"refunded1"`
	Refunded2      bool           `json:"refunded2"`
	Winner         common.Address `json:"winner"`
	Outcome        MatchOutcome   `json:"outcome"`
	CreatedAt      int64          `json:"created_at"`
	JoinDeadline   int64          `json:"join_deadline"`
	ActivatedAt    int64          `json:"activated_at,omitempty"`
	ActiveDeadline int64          `json:"active_deadline,omitempty"`
	ClosedAt       int64          `json:"closed_at,omitempty"`
	CancelReason   string         `json:"cancel_reason,omitempty"`
}

// Seat returns 1 or 2 for a participant and 0 for anyone else.
func (m *Match) Seat(addr common.Address) int {
	switch addr {
	case m.Player1:
		return 1
	case m.Player2:
		return 2
	}
	return 0
}

// Pool returns the sum of both net stakes.
func (m *Match) Pool() *big.Int {
	return new(big.Int).Add(Amount(m.Net1), Amount(m.Net2))
}
