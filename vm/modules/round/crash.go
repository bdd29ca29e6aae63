package round

import (
	"encoding/binary"

	"github.com/ghostnet-labs/ghostnet/crypto"
)

// Multipliers are fixed point with two decimals: 100 is 1.00x.
const (
	Precision  = 100
	MinOutcome = 100
	MaxOutcome = 10_000
	MinTarget  = 101
	MaxTarget  = MaxOutcome

	// One draw in instantCrashModulus busts at MinOutcome; this is the
	// house edge.
	instantCrashModulus = 33
	drawBits            = 52
)

// CrashPoint derives a round's outcome multiplier from the committed block
// hash. The result is always within [MinOutcome, MaxOutcome] and
// P(outcome >= x) falls off as roughly Precision/x.
func CrashPoint(blockHash []byte, roundID uint64) uint64 {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	d := crypto.HashBytes(blockHash, id[:])

	r := binary.BigEndian.Uint64(d[:8]) >> (64 - drawBits)
	if r%instantCrashModulus == 0 {
		return MinOutcome
	}
	const e = uint64(1) << drawBits
	out := (Precision*e - r) / (e - r)
	if out < MinOutcome {
		return MinOutcome
	}
	if out > MaxOutcome {
		return MaxOutcome
	}
	return out
}

// Wins reports whether a stake committed at target beats outcome.
func Wins(target, outcome uint64) bool {
	return target < outcome
}
