package ledger

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// State is the scalar part of the ledger. TotalGons is persisted so a restored
// ledger keeps the exact gon space it was created with.
type State struct {
	TotalGons           uint256.Int
	TotalSupply         uint256.Int
	TargetPrice         uint256.Int
	CurrentPrice        uint256.Int
	LastRebase          time.Time
	RebaseInterval      uint64
	MaxRebasePercentage uint8
}

// Changes is the set of records touched since the last accepted change set.
// Zero values mean the record should be deleted.
type Changes struct {
	State      *State // Nil when no scalar changed.
	Balances   map[types.Address]uint256.Int
	Allowances map[AllowanceKey]uint256.Int
	Nonces     map[types.Address]uint64 // Filled by the caller, not the ledger.
}

// Empty reports whether there is nothing to persist.
func (c *Changes) Empty() bool {
	return c.State == nil && len(c.Balances) == 0 && len(c.Allowances) == 0 && len(c.Nonces) == 0
}

// PendingChanges returns the current value of every record modified since the
// last AcceptChanges or DiscardChanges. Tracking is left intact, so the caller
// must follow up with exactly one of the two once the change set is persisted
// or abandoned. A rebase touches only State, so its change set is O(1)
// regardless of holder count.
func (l *Ledger) PendingChanges() *Changes {
	c := &Changes{
		Balances:   make(map[types.Address]uint256.Int, len(l.dirtyBalances)),
		Allowances: make(map[AllowanceKey]uint256.Int, len(l.dirtyAllowances)),
		Nonces:     make(map[types.Address]uint64),
	}
	if l.undoState != nil {
		s := l.State()
		c.State = &s
	}
	for addr := range l.dirtyBalances {
		c.Balances[addr] = *l.balanceGons(addr)
	}
	for key := range l.dirtyAllowances {
		c.Allowances[key] = *l.allowanceGons(key.Owner, key.Spender)
	}
	return c
}

// AcceptChanges marks the pending change set as persisted.
func (l *Ledger) AcceptChanges() {
	l.undoState = nil
	l.dirtyBalances = make(map[types.Address]uint256.Int)
	l.dirtyAllowances = make(map[AllowanceKey]uint256.Int)
}

// DiscardChanges reverts every record in the pending change set to the value it
// had when the set was last accepted.
func (l *Ledger) DiscardChanges() {
	if l.undoState != nil {
		l.setState(*l.undoState)
	}
	for addr, gons := range l.dirtyBalances {
		if gons.IsZero() {
			delete(l.balances, addr)
		} else {
			l.balances[addr] = gons.Clone()
		}
	}
	for key, gons := range l.dirtyAllowances {
		l.putAllowance(key.Owner, key.Spender, gons.Clone())
	}
	l.AcceptChanges()
}

// markState records the scalar pre-image before its first change in a change set.
func (l *Ledger) markState() {
	if l.undoState == nil {
		s := l.State()
		l.undoState = &s
	}
}

func (l *Ledger) setState(s State) {
	l.totalGons.Set(&s.TotalGons)
	l.totalSupply.Set(&s.TotalSupply)
	l.recomputeScalar()
	l.targetPrice.Set(&s.TargetPrice)
	l.currentPrice.Set(&s.CurrentPrice)
	l.lastRebase = s.LastRebase
	l.rebaseInterval = s.RebaseInterval
	l.maxRebasePct = s.MaxRebasePercentage
}

// Snapshot is the complete durable state of a ledger.
type Snapshot struct {
	State      State
	Balances   map[types.Address]uint256.Int
	Allowances map[AllowanceKey]uint256.Int
	Nonces     map[types.Address]uint64
}

// Snapshot captures the full ledger state.
func (l *Ledger) Snapshot() *Snapshot {
	s := &Snapshot{
		State:      l.State(),
		Balances:   make(map[types.Address]uint256.Int, len(l.balances)),
		Allowances: make(map[AllowanceKey]uint256.Int),
		Nonces:     make(map[types.Address]uint64),
	}
	for addr, bal := range l.balances {
		s.Balances[addr] = *bal
	}
	for owner, m := range l.allowances {
		for spender, v := range m {
			s.Allowances[AllowanceKey{Owner: owner, Spender: spender}] = *v
		}
	}
	return s
}

// Restore rebuilds a ledger from a snapshot, checking that balances still
// account for the whole gon space.
func Restore(s *Snapshot, deps Deps) (*Ledger, error) {
	if err := validateState(s.State); err != nil {
		return nil, err
	}

	l := newEmpty(deps)
	l.setState(s.State)

	sum := new(uint256.Int)
	for addr, bal := range s.Balances {
		if bal.IsZero() {
			continue
		}
		var overflow bool
		if sum, overflow = sum.AddOverflow(sum, &bal); overflow {
			return nil, fmt.Errorf("%w: balances overflow", ErrCorruptSnapshot)
		}
		l.balances[addr] = bal.Clone()
	}
	if !sum.Eq(&l.totalGons) {
		return nil, fmt.Errorf("%w: balances sum to %s gons, want %s", ErrCorruptSnapshot, sum.Dec(), l.totalGons.Dec())
	}

	for key, v := range s.Allowances {
		l.putAllowance(key.Owner, key.Spender, v.Clone())
	}

	return l, nil
}
