package ledger

import (
	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// AllowanceKey addresses a single owner/spender allowance.
type AllowanceKey struct {
	Owner   types.Address
	Spender types.Address
}

// Transfer moves amount fragments from one holder to another.
func (l *Ledger) Transfer(from, to types.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	// An amount whose gon value overflows exceeds every possible balance.
	gons, err := l.toGons(amount)
	if err != nil || l.balanceGons(from).Lt(gons) {
		return ErrInsufficientBalance
	}

	l.move(from, to, gons)
	l.deps.Sink.Emit(&types.TransferEvent{From: from, To: to, Value: *amount.Clone()})
	return nil
}

// TransferFrom moves amount fragments from one holder to another on behalf of
// spender, consuming spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to types.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return ErrInvalidRecipient
	}
	gons, err := l.toGons(amount)
	if err != nil {
		return ErrInsufficientAllowance
	}
	allowed := l.allowanceGons(from, spender)
	if allowed.Lt(gons) {
		return ErrInsufficientAllowance
	}
	if l.balanceGons(from).Lt(gons) {
		return ErrInsufficientBalance
	}

	l.setAllowance(from, spender, allowed.Sub(allowed, gons))
	l.move(from, to, gons)
	l.deps.Sink.Emit(&types.TransferEvent{From: from, To: to, Value: *amount.Clone()})
	return nil
}

// Approve replaces owner's allowance for spender with amount fragments.
func (l *Ledger) Approve(owner, spender types.Address, amount *uint256.Int) error {
	gons, err := l.toGons(amount)
	if err != nil {
		return err
	}

	l.setAllowance(owner, spender, gons)
	l.deps.Sink.Emit(&types.ApprovalEvent{Owner: owner, Spender: spender, Value: *amount.Clone()})
	return nil
}

// IncreaseAllowance adds delta fragments to owner's allowance for spender.
func (l *Ledger) IncreaseAllowance(owner, spender types.Address, delta *uint256.Int) error {
	gons, err := l.toGons(delta)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(l.allowanceGons(owner, spender), gons)
	if overflow {
		return ErrArithmeticOverflow
	}

	l.setAllowance(owner, spender, next)
	l.emitApproval(owner, spender, next)
	return nil
}

// DecreaseAllowance subtracts delta fragments from owner's allowance for spender.
// The allowance saturates at zero rather than failing.
func (l *Ledger) DecreaseAllowance(owner, spender types.Address, delta *uint256.Int) error {
	current := l.allowanceGons(owner, spender)
	next := new(uint256.Int)
	if gons, err := l.toGons(delta); err == nil && gons.Lt(current) {
		next.Sub(current, gons)
	}

	l.setAllowance(owner, spender, next)
	l.emitApproval(owner, spender, next)
	return nil
}

// Allowance returns how many fragments spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender types.Address) *uint256.Int {
	return l.toFragments(l.allowanceGons(owner, spender))
}

func (l *Ledger) emitApproval(owner, spender types.Address, gons *uint256.Int) {
	l.deps.Sink.Emit(&types.ApprovalEvent{Owner: owner, Spender: spender, Value: *l.toFragments(gons)})
}

// move debits and credits gons. The caller has checked the debit is covered; the
// credit cannot overflow because all balances sum to the fixed gon space.
func (l *Ledger) move(from, to types.Address, gons *uint256.Int) {
	fromBal := l.balanceGons(from)
	l.setBalance(from, fromBal.Sub(fromBal, gons))
	toBal := l.balanceGons(to)
	l.setBalance(to, toBal.Add(toBal, gons))
}

func (l *Ledger) allowanceGons(owner, spender types.Address) *uint256.Int {
	if v, ok := l.allowances[owner][spender]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) setAllowance(owner, spender types.Address, gons *uint256.Int) {
	key := AllowanceKey{Owner: owner, Spender: spender}
	if _, ok := l.dirtyAllowances[key]; !ok {
		l.dirtyAllowances[key] = *l.allowanceGons(owner, spender)
	}
	l.putAllowance(owner, spender, gons)
}

// putAllowance stores gons without change tracking. Zero removes the entry.
func (l *Ledger) putAllowance(owner, spender types.Address, gons *uint256.Int) {
	if gons.IsZero() {
		if m, ok := l.allowances[owner]; ok {
			delete(m, spender)
			if len(m) == 0 {
				delete(l.allowances, owner)
			}
		}
		return
	}
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[types.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	m[spender] = gons
}
