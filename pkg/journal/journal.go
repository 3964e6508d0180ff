// Package journal records ledger events for external observability.
package journal

import (
	"sync"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// Sink matches ledger.EventSink.
type Sink interface {
	Emit(ev types.Event)
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Emit(ev types.Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Memory keeps events in memory. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []types.Event
}

func (m *Memory) Emit(ev types.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Entry is a stored event in display form. Amounts are decimal fragment strings.
type Entry struct {
	ID              int64  `json:"id"`
	RecordedAt      int64  `json:"recorded_at"`
	Kind            string `json:"kind"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	Value           string `json:"value,omitempty"`
	Epoch           int64  `json:"epoch,omitempty"`
	IntervalSeconds uint64 `json:"interval_seconds,omitempty"`
	MaxPercentage   uint8  `json:"max_percentage,omitempty"`
}

// NewEntry flattens an event into an Entry.
func NewEntry(ev types.Event) Entry {
	e := Entry{Kind: ev.Kind().String()}
	switch v := ev.(type) {
	case *types.TransferEvent:
		e.From, e.To, e.Value = v.From.Hex(), v.To.Hex(), v.Value.Dec()
	case *types.ApprovalEvent:
		e.From, e.To, e.Value = v.Owner.Hex(), v.Spender.Hex(), v.Value.Dec()
	case *types.RebasedEvent:
		e.Epoch, e.Value = v.Epoch.Unix(), v.TotalSupply.Dec()
	case *types.PriceUpdatedEvent:
		e.Value = v.Price.Dec()
	case *types.RebaseParametersUpdatedEvent:
		e.IntervalSeconds, e.MaxPercentage = v.IntervalSeconds, v.MaxPercentage
	}
	return e
}
