package entropy

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/storage"
)

// History is a fixed-depth ring of block hashes kept outside the state
// root. Slot height%depth holds the 8-byte height followed by the hash, so
// an overwritten slot is detected on read.
type History struct {
	db    storage.DB
	depth int64
}

// NewHistory returns a ring of depth slots stored in db.
func NewHistory(db storage.DB, depth int64) (*History, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("history depth must be > 0, got %d", depth)
	}
	return &History{db: db, depth: depth}, nil
}

// Depth is the number of most recent heights the ring can answer for.
func (h *History) Depth() int64 { return h.depth }

func (h *History) slotKey(height int64) []byte {
	return []byte(fmt.Sprintf("entropy:%020d", height%h.depth))
}

// Record stores hash (hex) as the hash of block height.
func (h *History) Record(height int64, hash string) error {
	raw := common.FromHex(hash)
	if len(raw) != common.HashLength {
		return fmt.Errorf("block %d: hash must be %d bytes, got %d", height, common.HashLength, len(raw))
	}
	val := make([]byte, 8+len(raw))
	binary.BigEndian.PutUint64(val, uint64(height))
	copy(val[8:], raw)
	return h.db.Set(h.slotKey(height), val)
}

// Get returns the recorded hash of height, or ErrNotFound if it was never
// recorded or has been overwritten.
func (h *History) Get(height int64) ([]byte, error) {
	val, err := h.db.Get(h.slotKey(height))
	if err != nil {
		return nil, err
	}
	if len(val) != 8+common.HashLength || int64(binary.BigEndian.Uint64(val)) != height {
		return nil, errors.Wrapf(core.ErrNotFound, "block %d no longer in history", height)
	}
	return val[8:], nil
}
