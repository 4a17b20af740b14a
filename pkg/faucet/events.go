package faucet

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zama-ai/token-faucet/pkg/logger"
)

type EventKind string

const (
	TokensRequested    EventKind = "TokensRequested"
	TokensDeposited    EventKind = "TokensDeposited"
	TokensWithdrawn    EventKind = "TokensWithdrawn"
	EligibilityRevoked EventKind = "EligibilityRevoked"
)

// Event is emitted after a state change has been committed.
type Event struct {
	Seq    uint64         `json:"seq"`
	Kind   EventKind      `json:"kind"`
	Caller common.Address `json:"caller"`
	// Account is the subject of a revoke; zero for the other kinds
	Account common.Address `json:"account"`
	Asset   common.Address `json:"asset"`
	Symbol  string         `json:"symbol"`
	Amount  *big.Int       `json:"amount,omitempty"`
	Time    time.Time      `json:"time"`
}

// EventSink receives committed events in commit order.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// DefaultEventLogSize is the number of events kept by an EventLog created with size 0.
const DefaultEventLogSize = 1024

// EventLog keeps the most recent events in memory.
type EventLog struct {
	mu     sync.RWMutex
	size   int
	events []Event
}

func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &EventLog{size: size, events: make([]Event, 0, size)}
}

func (l *EventLog) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.size {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, e)
}

// Recent returns up to limit events, newest first. limit <= 0 returns all kept events.
func (l *EventLog) Recent(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// logSink writes every event to the faucet log.
type logSink struct{}

func (logSink) Emit(e Event) {
	switch e.Kind {
	case EligibilityRevoked:
		logger.Info("faucet event", "seq", e.Seq, "kind", string(e.Kind), "account", e.Account.Hex(), "asset", e.Symbol)
	default:
		logger.Info("faucet event", "seq", e.Seq, "kind", string(e.Kind), "caller", e.Caller.Hex(), "asset", e.Symbol, "amount", e.Amount.String())
	}
}
