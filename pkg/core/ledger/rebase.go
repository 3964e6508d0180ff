package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/policy"
	"github.com/chronodrachma/elastic/pkg/core/types"
)

// UpdatePrice records the latest oracle price. The value is trusted as-is.
func (l *Ledger) UpdatePrice(caller types.Address, price *uint256.Int) error {
	if !l.deps.Authority.IsPrivileged(caller) {
		return ErrUnauthorized
	}

	l.markState()
	l.currentPrice.Set(price)
	l.deps.Sink.Emit(&types.PriceUpdatedEvent{Price: *price.Clone()})
	return nil
}

// SetRebaseParameters replaces the rebase interval (seconds) and the maximum
// per-rebase percentage.
func (l *Ledger) SetRebaseParameters(caller types.Address, intervalSeconds uint64, maxPercentage uint8) error {
	if !l.deps.Authority.IsPrivileged(caller) {
		return ErrUnauthorized
	}
	if err := ValidateRebaseParameters(intervalSeconds, maxPercentage); err != nil {
		return err
	}

	l.markState()
	l.rebaseInterval = intervalSeconds
	l.maxRebasePct = maxPercentage
	l.deps.Sink.Emit(&types.RebaseParametersUpdatedEvent{IntervalSeconds: intervalSeconds, MaxPercentage: maxPercentage})
	return nil
}

// Rebase adjusts total supply toward the target price and returns the new supply.
// A rebase at target price leaves supply unchanged but still restarts the interval.
func (l *Ledger) Rebase(caller types.Address) (*uint256.Int, error) {
	if !l.deps.Authority.IsPrivileged(caller) {
		return nil, ErrUnauthorized
	}

	now := l.deps.Clock.Now()
	if now.Unix() < l.nextRebaseUnix() {
		return nil, ErrRebaseTooEarly
	}

	next, _, err := policy.CalcNextSupply(&l.totalSupply, &l.targetPrice, &l.currentPrice, l.maxRebasePct, MaxSupply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArithmeticUnderflow, err)
	}

	l.markState()
	l.lastRebase = now
	if !next.Eq(&l.totalSupply) {
		l.rescale(next)
	}

	l.deps.Sink.Emit(&types.RebasedEvent{Epoch: now, TotalSupply: *next.Clone()})
	return next, nil
}

// nextRebaseUnix is lastRebase + interval in unix seconds, saturating at MaxInt64.
func (l *Ledger) nextRebaseUnix() int64 {
	last := l.lastRebase.Unix()
	if l.rebaseInterval > uint64(math.MaxInt64-last) {
		return math.MaxInt64
	}
	return last + int64(l.rebaseInterval)
}

// RebaseDue reports whether Rebase would pass its interval gate at t.
func (l *Ledger) RebaseDue(t time.Time) bool {
	return t.Unix() >= l.nextRebaseUnix()
}
