package ledger

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// Genesis holds the parameters used to initialize a ledger.
type Genesis struct {
	Holder              types.Address // Receives the entire initial supply.
	InitialSupply       *uint256.Int
	TargetPrice         *uint256.Int
	RebaseInterval      uint64 // Seconds.
	MaxRebasePercentage uint8
}

// Ledger is the rebasing token state. Balances and allowances are held in gons;
// every amount crossing the API is in fragments.
//
// A Ledger performs no locking. Callers must serialize access (see node.Node).
type Ledger struct {
	totalGons       uint256.Int
	totalSupply     uint256.Int
	gonsPerFragment uint256.Int

	balances   map[types.Address]*uint256.Int
	allowances map[types.Address]map[types.Address]*uint256.Int

	lastRebase     time.Time
	rebaseInterval uint64
	maxRebasePct   uint8
	targetPrice    uint256.Int
	currentPrice   uint256.Int

	deps Deps

	// Pending change set: pre-images of every record touched since the last
	// AcceptChanges or DiscardChanges. A nil undoState means no scalar changed.
	undoState       *State
	dirtyBalances   map[types.Address]uint256.Int
	dirtyAllowances map[AllowanceKey]uint256.Int
}

func newEmpty(deps Deps) *Ledger {
	return &Ledger{
		balances:        make(map[types.Address]*uint256.Int),
		allowances:      make(map[types.Address]map[types.Address]*uint256.Int),
		deps:            deps.withDefaults(),
		dirtyBalances:   make(map[types.Address]uint256.Int),
		dirtyAllowances: make(map[AllowanceKey]uint256.Int),
	}
}

// New initializes a ledger at genesis: the whole gon space is credited to the
// genesis holder, the current price starts at the target, and the rebase clock
// starts now.
func New(g Genesis, deps Deps) (*Ledger, error) {
	if err := ValidateGenesis(g); err != nil {
		return nil, err
	}

	l := newEmpty(deps)
	l.markState()
	l.totalGons.Set(TotalGonsFor(g.InitialSupply))
	l.totalSupply.Set(g.InitialSupply)
	l.recomputeScalar()

	l.targetPrice.Set(g.TargetPrice)
	l.currentPrice.Set(g.TargetPrice)
	l.rebaseInterval = g.RebaseInterval
	l.maxRebasePct = g.MaxRebasePercentage
	l.lastRebase = l.deps.Clock.Now()

	l.setBalance(g.Holder, l.totalGons.Clone())

	l.deps.Sink.Emit(&types.TransferEvent{From: types.ZeroAddress, To: g.Holder, Value: *g.InitialSupply.Clone()})
	return l, nil
}

// State returns the scalar portion of the ledger.
func (l *Ledger) State() State {
	return State{
		TotalGons:           l.totalGons,
		TotalSupply:         l.totalSupply,
		TargetPrice:         l.targetPrice,
		CurrentPrice:        l.currentPrice,
		LastRebase:          l.lastRebase,
		RebaseInterval:      l.rebaseInterval,
		MaxRebasePercentage: l.maxRebasePct,
	}
}

// NextRebaseTime returns the earliest time at which Rebase will be accepted.
func (l *Ledger) NextRebaseTime() time.Time {
	return time.Unix(l.nextRebaseUnix(), 0)
}

// Holders returns the number of addresses with a non-zero balance.
func (l *Ledger) Holders() int {
	return len(l.balances)
}
