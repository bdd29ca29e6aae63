package arbiter

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
)

// Verifier recovers the signer of an arbiter digest.
type Verifier interface {
	Recover(digest []byte, sig string) (common.Address, error)
}

// ECDSAVerifier checks 65-byte R || S || V secp256k1 signatures. V may be
// 0/1 or 27/28; high-S signatures are rejected as malleable.
type ECDSAVerifier struct {
	cache *lru.Cache
}

// NewECDSAVerifier caches up to size recoveries.
func NewECDSAVerifier(size int) (*ECDSAVerifier, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ECDSAVerifier{cache: cache}, nil
}

func (v *ECDSAVerifier) Recover(digest []byte, sig string) (common.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return common.Address{}, errors.Wrapf(core.ErrAuthorization, "signature hex: %v", err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, errors.Wrapf(core.ErrAuthorization, "signature must be %d bytes, got %d", crypto.SignatureLength, len(raw))
	}
	if len(digest) != common.HashLength {
		return common.Address{}, errors.Wrapf(core.ErrValidation, "digest must be %d bytes", common.HashLength)
	}

	key := string(digest) + string(raw)
	if addr, ok := v.cache.Get(key); ok {
		return addr.(common.Address), nil
	}

	rs := make([]byte, crypto.SignatureLength)
	copy(rs, raw)
	switch rs[64] {
	case 27, 28:
		rs[64] -= 27
	case 0, 1:
	default:
		return common.Address{}, errors.Wrapf(core.ErrAuthorization, "invalid recovery id %d", raw[64])
	}
	r := new(big.Int).SetBytes(rs[:32])
	s := new(big.Int).SetBytes(rs[32:64])
	if !crypto.ValidateSignatureValues(rs[64], r, s, true) {
		return common.Address{}, errors.Wrap(core.ErrAuthorization, "signature values out of range")
	}
	pub, err := crypto.SigToPub(digest, rs)
	if err != nil {
		return common.Address{}, errors.Wrapf(core.ErrAuthorization, "recover: %v", err)
	}
	addr := crypto.PubkeyToAddress(*pub)
	v.cache.Add(key, addr)
	return addr, nil
}

// Authorize fails with ErrAuthorization unless sig over digest recovers to
// want.
func Authorize(v Verifier, digest []byte, sig string, want common.Address) error {
	signer, err := v.Recover(digest, sig)
	if err != nil {
		return err
	}
	if want == (common.Address{}) || signer != want {
		return errors.Wrapf(core.ErrAuthorization, "signed by %s, arbiter is %s", signer.Hex(), want.Hex())
	}
	return nil
}
