// Package arbiter canonicalises and verifies the signed messages through
// which an off-chain arbiter creates and resolves matches.
package arbiter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ghostnet-labs/ghostnet/core"
)

// Message actions bound into every digest.
const (
	ActionCreate = "CREATE"
	ActionResult = "RESULT"
)

// Domain separates signatures between networks and deployments.
type Domain struct {
	EnvironmentID uint64
	Contract      common.Address
}

func word(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func (d Domain) pack() [][]byte {
	return [][]byte{word(new(big.Int).SetUint64(d.EnvironmentID)), d.Contract.Bytes()}
}

// CreateDigest is the digest the arbiter signs to create a match between
// p1 and p2 at tier.
func CreateDigest(d Domain, p1, p2 common.Address, tier uint8, nonce *big.Int) []byte {
	parts := [][]byte{[]byte(ActionCreate), p1.Bytes(), p2.Bytes(), {tier}, word(nonce)}
	return ethSignedHash(crypto.Keccak256(append(parts, d.pack()...)...))
}

// ResultDigest is the digest the arbiter signs to resolve a match.
func ResultDigest(d Domain, matchID uint64, winner common.Address, outcome core.MatchOutcome, nonce *big.Int) []byte {
	parts := [][]byte{
		[]byte(ActionResult),
		word(new(big.Int).SetUint64(matchID)),
		winner.Bytes(),
		{byte(outcome)},
		word(nonce),
	}
	return ethSignedHash(crypto.Keccak256(append(parts, d.pack()...)...))
}

// ethSignedHash applies the "\x19Ethereum Signed Message:\n32" prefix so
// standard wallet tooling can produce arbiter signatures.
func ethSignedHash(h []byte) []byte {
	return crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n32"), h)
}
