// Package feed mirrors chain events into an off-chain activity table.
// Delivery is best effort: the chain never waits on the feed, and events
// that arrive while the queue is full are dropped and counted.
package feed

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ghostnet-labs/ghostnet/events"
)

var flog = log.New("module", "feed")

const (
	// DefaultQueueSize is used when the configured size is not positive.
	DefaultQueueSize = 1024
	maxBatch         = 64
	writeTimeout     = 5 * time.Second
)

// actorKeys are the event fields that name the account an event is about,
// in order of preference.
var actorKeys = []string{"player", "player1", "from", "owner", "to"}

// Row is one activity record.
type Row struct {
	BlockHeight int64
	TxID        string
	EventType   string
	Actor       string
	Data        []byte // JSON
}

// Sink persists rows.
type Sink interface {
	Write(ctx context.Context, rows []Row) error
	Close() error
}

// Feed queues events from an emitter and writes them to a Sink in batches.
type Feed struct {
	sink    Sink
	queue   chan Row
	dropped atomic.Uint64
}

// New creates a Feed over sink.
func New(sink Sink, queueSize int) *Feed {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Feed{sink: sink, queue: make(chan Row, queueSize)}
}

// Attach subscribes the feed to every event on emitter.
func (f *Feed) Attach(emitter *events.Emitter) {
	emitter.SubscribeAll(f.enqueue)
}

// Dropped returns how many events were discarded because the queue was full.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *Feed) enqueue(ev events.Event) {
	if ev.Type == events.EventBlockCommit {
		return
	}
	row, err := toRow(ev)
	if err != nil {
		flog.Warn("Unencodable event skipped", "type", ev.Type, "tx", ev.TxID, "err", err)
		return
	}
	select {
	case f.queue <- row:
	default:
		if n := f.dropped.Add(1); n == 1 || n%1000 == 0 {
			flog.Warn("Activity feed queue full", "dropped", n)
		}
	}
}

func toRow(ev events.Event) (Row, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Row{}, err
	}
	row := Row{BlockHeight: ev.BlockHeight, TxID: ev.TxID, EventType: string(ev.Type), Data: data}
	for _, k := range actorKeys {
		if s, ok := ev.Data[k].(string); ok && s != "" {
			row.Actor = s
			break
		}
	}
	return row, nil
}

// Run drains the queue until ctx is cancelled, then flushes what is left
// and closes the sink.
func (f *Feed) Run(ctx context.Context) {
	defer func() {
		if err := f.sink.Close(); err != nil {
			flog.Warn("Closing activity sink", "err", err)
		}
	}()
	batch := make([]Row, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case row := <-f.queue:
					batch = append(batch, row)
					if len(batch) == maxBatch {
						f.flush(batch)
						batch = batch[:0]
					}
				default:
					f.flush(batch)
					return
				}
			}
		case row := <-f.queue:
			batch = append(batch[:0], row)
		fill:
			for len(batch) < maxBatch {
				select {
				case row := <-f.queue:
					batch = append(batch, row)
				default:
					break fill
				}
			}
			f.flush(batch)
			batch = batch[:0]
		}
	}
}

func (f *Feed) flush(rows []Row) {
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := f.sink.Write(ctx, rows); err != nil {
		flog.Error("Activity feed write failed", "rows", len(rows), "err", err)
		return
	}
	flog.Trace("Activity rows written", "rows", len(rows))
}
