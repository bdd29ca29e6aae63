package events

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

var elog = log.New("module", "events")

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"
	EventTxFailed    EventType = "tx_failed"

	EventTokenTransfer EventType = "token_transfer"
	EventTokenApprove  EventType = "token_approve"
	EventTokenBurn     EventType = "token_burn"

	EventGameRegistered  EventType = "game_registered"
	EventGameUpdated     EventType = "game_updated"
	EventGamePaused      EventType = "game_paused"
	EventGameUnpaused    EventType = "game_unpaused"
	EventGameActivated   EventType = "game_activated"
	EventEntryAccepted   EventType = "entry_accepted"
	EventPayoutCredited  EventType = "payout_credited"
	EventPayoutWithdrawn EventType = "payout_withdrawn"
	EventRefund          EventType = "refund"
	EventReserveFunded   EventType = "reserve_funded"
	EventReserveWithdraw EventType = "reserve_withdrawn"

	EventRoundOpened    EventType = "round_opened"
	EventRoundCommitted EventType = "round_committed"
	EventRoundLocked    EventType = "round_locked"
	EventRoundCancelled EventType = "round_cancelled"
	EventRoundRevealed  EventType = "round_revealed"
	EventStakeSettled   EventType = "stake_settled"
	EventRoundSettled   EventType = "round_settled"
	EventRoundExpired   EventType = "round_expired"

	EventMatchCreated   EventType = "match_created"
	EventMatchJoined    EventType = "match_joined"
	EventMatchResolved  EventType = "match_resolved"
	EventMatchCancelled EventType = "match_cancelled"
	EventArbiterRotated EventType = "arbiter_rotated"
	EventParamsUpdated  EventType = "params_updated"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously, then to
// the catch-all subscribers. A panicking handler is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					elog.Error("Event handler panicked", "type", ev.Type, "tx", ev.TxID, "err", r)
				}
			}()
			h(ev)
		}()
	}
}
