// Package entropy resolves the hash of a committed block for commit-reveal
// games. Recent hashes come from the chain itself; older ones come from the
// History ring until it too has rotated past them.
package entropy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
)

var elog = log.New("module", "entropy")

const (
	// NativeWindow is how far back the chain answers for block hashes.
	NativeWindow = 256
	// DefaultHistoryDepth is the default History ring size.
	DefaultHistoryDepth = 8192
	// DefaultCacheSize is the default number of resolved hashes cached.
	DefaultCacheSize = 1024
)

// Chain is the committed block lookup. core.Blockchain implements it.
type Chain interface {
	HashAt(height int64) (string, error)
}

// Source implements vm.Entropy.
type Source struct {
	chain   Chain
	history *History
	cache   *lru.Cache
}

// NewSource returns a Source. history may be nil, in which case only the
// native window is available.
func NewSource(chain Chain, history *History, cacheSize int) (*Source, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Source{chain: chain, history: history, cache: cache}, nil
}

// Window is the oldest age, in blocks, for which a hash can be returned.
func (s *Source) Window() int64 {
	if s.history != nil && s.history.Depth() > NativeWindow {
		return s.history.Depth()
	}
	return NativeWindow
}

// Expired reports whether target has aged out of every lookup path.
func (s *Source) Expired(target, current int64) bool {
	return current-target > s.Window()
}

// BlockHash returns the hash of block target as seen while executing block
// current. The target must already be committed and within Window.
func (s *Source) BlockHash(target, current int64) ([]byte, error) {
	if target >= current {
		return nil, errors.Wrapf(core.ErrTiming, "block %d not mined at height %d", target, current)
	}
	if target < 0 {
		return nil, errors.Wrapf(core.ErrValidation, "negative block height %d", target)
	}
	if s.Expired(target, current) {
		return nil, errors.Wrapf(core.ErrTiming, "block %d hash unavailable at height %d", target, current)
	}
	if v, ok := s.cache.Get(target); ok {
		return v.([]byte), nil
	}

	var (
		hash []byte
		err  error
	)
	if current-target <= NativeWindow {
		var hex string
		hex, err = s.chain.HashAt(target)
		if err == nil {
			hash = common.FromHex(hex)
		}
	} else {
		hash, err = s.history.Get(target)
	}
	if errors.Is(err, core.ErrNotFound) {
		elog.Warn("Block hash missing inside lookback window", "target", target, "current", current)
		return nil, errors.Wrapf(core.ErrTiming, "block %d hash unavailable", target)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup block %d", target)
	}
	s.cache.Add(target, hash)
	return hash, nil
}
