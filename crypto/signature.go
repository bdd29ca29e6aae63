package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an R || S || V recoverable signature.
const SignatureLength = ethcrypto.SignatureLength

// Sign signs a 32-byte digest and returns the hex-encoded R || S || V
// signature with V in {0, 1}.
func Sign(priv PrivateKey, digest []byte) (string, error) {
	k, err := priv.ECDSA()
	if err != nil {
		return "", err
	}
	sig, err := ethcrypto.Sign(digest, k)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Recover returns the address that produced sigHex over digest.
func Recover(digest []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sigHex over digest was produced by addr.
func Verify(addr common.Address, digest []byte, sigHex string) error {
	signer, err := Recover(digest, sigHex)
	if err != nil {
		return err
	}
	if signer != addr {
		return errors.New("signature verification failed")
	}
	return nil
}
