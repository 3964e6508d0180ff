package ledger

import (
	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

var (
	// MaxSupply is the hard ceiling on total supply in fragments (2^128 - 1).
	MaxSupply = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

	maxUint256 = new(uint256.Int).SetAllOne()
)

// TotalGonsFor returns the fixed gon space for a ledger created with initialSupply:
// the largest multiple of initialSupply that fits in 256 bits, so the genesis
// scalar divides it exactly.
func TotalGonsFor(initialSupply *uint256.Int) *uint256.Int {
	rem := new(uint256.Int).Mod(maxUint256, initialSupply)
	return new(uint256.Int).Sub(maxUint256, rem)
}

// toGons converts a fragment amount to gons.
func (l *Ledger) toGons(fragments *uint256.Int) (*uint256.Int, error) {
	gons, overflow := new(uint256.Int).MulOverflow(fragments, &l.gonsPerFragment)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return gons, nil
}

// toFragments converts gons to fragments, truncating remainders below one fragment.
func (l *Ledger) toFragments(gons *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(gons, &l.gonsPerFragment)
}

// recomputeScalar refreshes gonsPerFragment from the current total supply.
func (l *Ledger) recomputeScalar() {
	l.gonsPerFragment.Div(&l.totalGons, &l.totalSupply)
}

// rescale sets a new total supply and refreshes the scalar. No balance is written:
// every holder's reported balance moves with the scalar.
func (l *Ledger) rescale(supply *uint256.Int) {
	l.markState()
	l.totalSupply.Set(supply)
	l.recomputeScalar()
}

// TotalSupply returns the elastic total supply in fragments.
func (l *Ledger) TotalSupply() *uint256.Int {
	return l.totalSupply.Clone()
}

// BalanceOf returns holder's balance in fragments.
func (l *Ledger) BalanceOf(holder types.Address) *uint256.Int {
	return l.toFragments(l.balanceGons(holder))
}

func (l *Ledger) balanceGons(holder types.Address) *uint256.Int {
	if bal, ok := l.balances[holder]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

func (l *Ledger) setBalance(holder types.Address, gons *uint256.Int) {
	if _, ok := l.dirtyBalances[holder]; !ok {
		l.dirtyBalances[holder] = *l.balanceGons(holder)
	}
	if gons.IsZero() {
		delete(l.balances, holder)
	} else {
		l.balances[holder] = gons
	}
}
