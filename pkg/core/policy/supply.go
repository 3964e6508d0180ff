package policy

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// MaxRebasePercentageLimit is the largest per-rebase supply change an operator may configure.
	MaxRebasePercentageLimit = 50

	// percentScale is the denominator of deviation percentages.
	percentScale = 100
)

var ErrDeltaExceedsSupply = errors.New("supply delta exceeds total supply")

// Deviation returns the signed percentage by which currentPrice diverges from targetPrice,
// truncated toward zero and clamped to [-maxPercentage, +maxPercentage].
//
// The sign is inverted relative to the price move: a price above target yields a
// negative deviation, which expands supply; a price below target yields a positive
// deviation, which contracts supply.
func Deviation(targetPrice, currentPrice *uint256.Int, maxPercentage uint8) int64 {
	if targetPrice.IsZero() || currentPrice.Eq(targetPrice) {
		return 0
	}

	above := currentPrice.Gt(targetPrice)
	diff := new(uint256.Int)
	if above {
		diff.Sub(currentPrice, targetPrice)
	} else {
		diff.Sub(targetPrice, currentPrice)
	}

	limit := uint256.NewInt(uint64(maxPercentage))
	magnitude := limit
	// A product that does not fit 256 bits is far beyond any permitted limit.
	if scaled, overflow := new(uint256.Int).MulOverflow(diff, uint256.NewInt(percentScale)); !overflow {
		scaled.Div(scaled, targetPrice)
		if scaled.Lt(limit) {
			magnitude = scaled
		}
	}

	dev := int64(magnitude.Uint64())
	if above {
		return -dev
	}
	return dev
}

// SupplyDelta returns totalSupply * deviation / 100 as a two's-complement int256,
// truncated toward zero.
func SupplyDelta(totalSupply *uint256.Int, deviation int64) *uint256.Int {
	abs := uint64(deviation)
	if deviation < 0 {
		abs = uint64(-deviation)
	}
	delta := new(uint256.Int).Mul(totalSupply, uint256.NewInt(abs))
	delta.Div(delta, uint256.NewInt(percentScale))
	if deviation < 0 {
		delta.Neg(delta)
	}
	return delta
}

// LimitExpansion caps a negative (expanding) delta so that totalSupply + |delta|
// cannot pass maxSupply. Positive deltas are returned unchanged.
func LimitExpansion(totalSupply, delta, maxSupply *uint256.Int) *uint256.Int {
	if delta.Sign() >= 0 {
		return delta.Clone()
	}
	abs := new(uint256.Int).Abs(delta)
	sum, overflow := new(uint256.Int).AddOverflow(totalSupply, abs)
	if !overflow && !sum.Gt(maxSupply) {
		return delta.Clone()
	}
	headroom := new(uint256.Int)
	if maxSupply.Gt(totalSupply) {
		headroom.Sub(maxSupply, totalSupply)
	}
	return headroom.Neg(headroom)
}

// ApplyDelta converts the signed delta back into the unsigned supply domain:
// a negative delta adds |delta|, a positive delta subtracts it. The result is
// clamped to maxSupply.
func ApplyDelta(totalSupply, delta, maxSupply *uint256.Int) (*uint256.Int, error) {
	next := new(uint256.Int)
	switch delta.Sign() {
	case 0:
		next.Set(totalSupply)
	case -1:
		abs := new(uint256.Int).Abs(delta)
		if _, overflow := next.AddOverflow(totalSupply, abs); overflow {
			next.Set(maxSupply)
		}
	default:
		if delta.Gt(totalSupply) {
			return nil, ErrDeltaExceedsSupply
		}
		next.Sub(totalSupply, delta)
	}

	if next.Gt(maxSupply) {
		next.Set(maxSupply)
	}
	return next, nil
}

// CalcNextSupply runs the full rebase adjustment: deviation, clamping, delta,
// expansion limit, application and ceiling clamp. It returns the new supply and the
// signed delta that produced it.
func CalcNextSupply(totalSupply, targetPrice, currentPrice *uint256.Int, maxPercentage uint8, maxSupply *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if currentPrice.Eq(targetPrice) {
		return totalSupply.Clone(), new(uint256.Int), nil
	}

	deviation := Deviation(targetPrice, currentPrice, maxPercentage)
	delta := LimitExpansion(totalSupply, SupplyDelta(totalSupply, deviation), maxSupply)

	next, err := ApplyDelta(totalSupply, delta, maxSupply)
	if err != nil {
		return nil, nil, err
	}
	return next, delta, nil
}
