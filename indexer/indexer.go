// Package indexer maintains secondary indexes over executed transactions so
// clients can list a player's rounds and matches and look up receipts
// without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/events"
	"github.com/ghostnet-labs/ghostnet/storage"
)

var ilog = log.New("module", "indexer")

const (
	prefixPlayerRounds  = "idx:player:round:"
	prefixPlayerMatches = "idx:player:match:"
	prefixReceipt       = "idx:receipt:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	mu      sync.Mutex
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventRoundCommitted, idx.onRoundCommitted)
	emitter.Subscribe(events.EventMatchCreated, idx.onMatchCreated)
	emitter.Subscribe(events.EventTxExecuted, idx.onReceipt(true))
	emitter.Subscribe(events.EventTxFailed, idx.onReceipt(false))
	return idx
}

// GetRoundsByPlayer returns the ids of rounds player committed to, oldest first.
func (idx *Indexer) GetRoundsByPlayer(player common.Address) ([]uint64, error) {
	return idx.getList(prefixPlayerRounds + player.Hex())
}

// GetMatchesByPlayer returns the ids of matches player was invited to.
func (idx *Indexer) GetMatchesByPlayer(player common.Address) ([]uint64, error) {
	return idx.getList(prefixPlayerMatches + player.Hex())
}

// GetReceipt returns the outcome of a submitted transaction.
func (idx *Indexer) GetReceipt(txID string) (*core.Receipt, error) {
	data, err := idx.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("indexer unmarshal receipt: %w", err)
	}
	return &r, nil
}

// ---- event handlers ----

func (idx *Indexer) onRoundCommitted(ev events.Event) {
	id, ok := toID(ev.Data["round_id"])
	player, _ := ev.Data["player"].(string)
	if !ok || player == "" {
		return
	}
	idx.addToList(prefixPlayerRounds+common.HexToAddress(player).Hex(), id)
}

func (idx *Indexer) onMatchCreated(ev events.Event) {
	id, ok := toID(ev.Data["match_id"])
	if !ok {
		return
	}
	for _, k := range []string{"player1", "player2"} {
		if p, _ := ev.Data[k].(string); p != "" {
			idx.addToList(prefixPlayerMatches+common.HexToAddress(p).Hex(), id)
		}
	}
}

func (idx *Indexer) onReceipt(success bool) events.Handler {
	return func(ev events.Event) {
		if ev.TxID == "" {
			return
		}
		typ, _ := ev.Data["type"].(string)
		from, _ := ev.Data["from"].(string)
		r := core.Receipt{
			TxID:        ev.TxID,
			Type:        core.TxType(typ),
			From:        from,
			BlockHeight: ev.BlockHeight,
			Success:     success,
		}
		if !success {
			r.ErrorKind, _ = ev.Data["error_kind"].(string)
			r.Error, _ = ev.Data["error"].(string)
		}
		data, err := json.Marshal(r)
		if err != nil {
			return
		}
		if err := idx.db.Set([]byte(prefixReceipt+ev.TxID), data); err != nil {
			ilog.Error("Failed to store receipt", "tx", ev.TxID, "err", err)
		}
	}
}

func toID(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case float64:
		return uint64(n), n >= 0
	}
	return 0, false
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// addToList appends id unless it is already the last entry.
func (idx *Indexer) addToList(key string, id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.getList(key)
	if err != nil {
		ilog.Error("Failed to read index", "key", key, "err", err)
		return
	}
	if n := len(ids); n > 0 && ids[n-1] == id {
		return
	}
	data, err := json.Marshal(append(ids, id))
	if err != nil {
		return
	}
	if err := idx.db.Set([]byte(key), data); err != nil {
		ilog.Error("Failed to write index", "key", key, "err", err)
	}
}
