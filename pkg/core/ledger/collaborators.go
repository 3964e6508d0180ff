package ledger

import (
	"sync"
	"time"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// Authority answers whether a caller may update the price, change rebase
// parameters or trigger a rebase.
type Authority interface {
	IsPrivileged(caller types.Address) bool
}

// StaticAuthority grants privilege to a fixed set of operator addresses.
type StaticAuthority map[types.Address]struct{}

// NewStaticAuthority returns an Authority for the given operators.
func NewStaticAuthority(operators ...types.Address) StaticAuthority {
	a := make(StaticAuthority, len(operators))
	for _, op := range operators {
		a[op] = struct{}{}
	}
	return a
}

func (a StaticAuthority) IsPrivileged(caller types.Address) bool {
	_, ok := a[caller]
	return ok
}

// Clock supplies the current time. Implementations must be monotonically non-decreasing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// EventSink receives ledger notifications after an operation has been applied.
type EventSink interface {
	Emit(ev types.Event)
}

type discardSink struct{}

func (discardSink) Emit(types.Event) {}

// Deps bundles the collaborators a Ledger consults. Nil fields fall back to
// deny-all authority, the system clock and a discarding sink.
type Deps struct {
	Authority Authority
	Clock     Clock
	Sink      EventSink
}

func (d Deps) withDefaults() Deps {
	if d.Authority == nil {
		d.Authority = NewStaticAuthority()
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Sink == nil {
		d.Sink = discardSink{}
	}
	return d
}
