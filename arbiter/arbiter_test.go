package arbiter

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func setup(t *testing.T) (*Signer, *ECDSAVerifier, Domain) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	d := Domain{EnvironmentID: 7, Contract: crypto.ModuleAddress("match")}
	v, err := NewECDSAVerifier(32)
	require.NoError(t, err)
	return NewSigner(key, d), v, d
}

func TestCreateSignatureRoundTrip(t *testing.T) {
	s, v, d := setup(t)
	sig, err := s.SignCreate(alice, bob, 2, big.NewInt(42))
	require.NoError(t, err)

	require.NoError(t, Authorize(v, CreateDigest(d, alice, bob, 2, big.NewInt(42)), sig, s.Address()))
	// Cached path returns the same answer.
	require.NoError(t, Authorize(v, CreateDigest(d, alice, bob, 2, big.NewInt(42)), sig, s.Address()))
}

func TestMutatedFieldsFailAuthorization(t *testing.T) {
	s, v, d := setup(t)
	nonce := big.NewInt(9)
	sig, err := s.SignCreate(alice, bob, 1, nonce)
	require.NoError(t, err)

	cases := map[string][]byte{
		"player1":     CreateDigest(d, bob, bob, 1, nonce),
		"player2":     CreateDigest(d, alice, alice, 1, nonce),
		"swapped":     CreateDigest(d, bob, alice, 1, nonce),
		"tier":        CreateDigest(d, alice, bob, 2, nonce),
		"nonce":       CreateDigest(d, alice, bob, 1, big.NewInt(10)),
		"environment": CreateDigest(Domain{EnvironmentID: 8, Contract: d.Contract}, alice, bob, 1, nonce),
		"contract":    CreateDigest(Domain{EnvironmentID: 7, Contract: alice}, alice, bob, 1, nonce),
	}
	for name, digest := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Authorize(v, digest, sig, s.Address()), core.ErrAuthorization)
		})
	}
}

func TestResultDigestBindsOutcome(t *testing.T) {
	s, v, d := setup(t)
	sig, err := s.SignResult(3, alice, core.OutcomeWin, big.NewInt(1))
	require.NoError(t, err)

	require.NoError(t, Authorize(v, ResultDigest(d, 3, alice, core.OutcomeWin, big.NewInt(1)), sig, s.Address()))
	assert.ErrorIs(t, Authorize(v, ResultDigest(d, 3, alice, core.OutcomeForfeit, big.NewInt(1)), sig, s.Address()), core.ErrAuthorization)
	assert.ErrorIs(t, Authorize(v, ResultDigest(d, 4, alice, core.OutcomeWin, big.NewInt(1)), sig, s.Address()), core.ErrAuthorization)
	assert.ErrorIs(t, Authorize(v, ResultDigest(d, 3, bob, core.OutcomeWin, big.NewInt(1)), sig, s.Address()), core.ErrAuthorization)
}

func TestCreateAndResultDigestsDiffer(t *testing.T) {
	d := Domain{EnvironmentID: 1}
	assert.NotEqual(t, CreateDigest(d, alice, bob, 0, big.NewInt(1)), ResultDigest(d, 0, alice, core.OutcomeWin, big.NewInt(1)))
}

func TestRecoverAcceptsBothRecoveryIDForms(t *testing.T) {
	s, v, d := setup(t)
	sig, err := s.SignCreate(alice, bob, 0, big.NewInt(5))
	require.NoError(t, err)
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)
	raw[64] -= 27

	got, err := v.Recover(CreateDigest(d, alice, bob, 0, big.NewInt(5)), hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	raw[64] = 5
	_, err = v.Recover(CreateDigest(d, alice, bob, 0, big.NewInt(5)), hex.EncodeToString(raw))
	assert.ErrorIs(t, err, core.ErrAuthorization)
}

func TestRecoverRejectsHighS(t *testing.T) {
	s, v, d := setup(t)
	digest := CreateDigest(d, alice, bob, 0, big.NewInt(6))
	sig, err := s.SignCreate(alice, bob, 0, big.NewInt(6))
	require.NoError(t, err)
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	require.NoError(t, err)

	// (r, n-s, v^1) is the malleated twin of a valid signature.
	sVal := new(big.Int).SetBytes(raw[32:64])
	highS := new(big.Int).Sub(ethcrypto.S256().Params().N, sVal)
	copy(raw[32:64], common.LeftPadBytes(highS.Bytes(), 32))
	raw[64] = 27 + (raw[64]-27)^1

	_, err = v.Recover(digest, hex.EncodeToString(raw))
	assert.ErrorIs(t, err, core.ErrAuthorization)
}

func TestRecoverRejectsMalformed(t *testing.T) {
	_, v, d := setup(t)
	digest := CreateDigest(d, alice, bob, 0, big.NewInt(1))
	_, err := v.Recover(digest, "0x1234")
	assert.ErrorIs(t, err, core.ErrAuthorization)
	_, err = v.Recover(digest, "zz")
	assert.ErrorIs(t, err, core.ErrAuthorization)
}
