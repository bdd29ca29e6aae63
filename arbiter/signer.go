package arbiter

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
)

// Signer produces arbiter attestations with V in {27, 28}.
type Signer struct {
	key    crypto.PrivateKey
	domain Domain
}

// NewSigner binds key to domain.
func NewSigner(key crypto.PrivateKey, domain Domain) *Signer {
	return &Signer{key: key, domain: domain}
}

// Address is the arbiter address to register on chain.
func (s *Signer) Address() common.Address { return s.key.Address() }

// SignCreate attests a match creation.
func (s *Signer) SignCreate(p1, p2 common.Address, tier uint8, nonce *big.Int) (string, error) {
	return s.sign(CreateDigest(s.domain, p1, p2, tier, nonce))
}

// SignResult attests a match result.
func (s *Signer) SignResult(matchID uint64, winner common.Address, outcome core.MatchOutcome, nonce *big.Int) (string, error) {
	return s.sign(ResultDigest(s.domain, matchID, winner, outcome, nonce))
}

func (s *Signer) sign(digest []byte) (string, error) {
	sigHex, err := crypto.Sign(s.key, digest)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", err
	}
	raw[64] += 27
	return "0x" + hex.EncodeToString(raw), nil
}
