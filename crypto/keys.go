package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a 32-byte secp256k1 private scalar.
type PrivateKey []byte

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (PrivateKey, error) {
	k, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return PrivateKey(ethcrypto.FromECDSA(k)), nil
}

// ECDSA converts the raw key into an *ecdsa.PrivateKey.
func (priv PrivateKey) ECDSA() (*ecdsa.PrivateKey, error) {
	return ethcrypto.ToECDSA(priv)
}

// Address returns the 20-byte account address controlled by the key.
// An invalid key yields the zero address.
func (priv PrivateKey) Address() common.Address {
	k, err := priv.ECDSA()
	if err != nil {
		return common.Address{}
	}
	return ethcrypto.PubkeyToAddress(k.PublicKey)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// PrivKeyFromHex decodes a hex-encoded private key (optional 0x prefix).
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if _, err := ethcrypto.ToECDSA(b); err != nil {
		return nil, fmt.Errorf("invalid privkey: %w", err)
	}
	return PrivateKey(b), nil
}

// AddressFromHex parses a 0x-prefixed or bare 40-char hex address.
func AddressFromHex(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ModuleAddress derives the deterministic account address owned by a VM
// module. No private key exists for it.
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(HashBytes([]byte("ghostnet/module/" + name))[12:])
}
