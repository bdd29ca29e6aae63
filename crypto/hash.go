package crypto

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Hash returns the Keccak-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(data))
}

// HashBytes returns the raw Keccak-256 bytes of the concatenated inputs.
func HashBytes(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}
