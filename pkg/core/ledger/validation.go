package ledger

import (
	"fmt"

	"github.com/chronodrachma/elastic/pkg/core/policy"
)

// ValidateRebaseParameters checks operator-supplied rebase policy values.
func ValidateRebaseParameters(intervalSeconds uint64, maxPercentage uint8) error {
	// 1. The interval gate must be positive.
	if intervalSeconds == 0 {
		return fmt.Errorf("%w: rebase interval must be positive", ErrInvalidParameter)
	}

	// 2. The per-rebase change is bounded to (0, 50] percent.
	if maxPercentage == 0 || maxPercentage > policy.MaxRebasePercentageLimit {
		return fmt.Errorf("%w: max rebase percentage %d outside (0, %d]",
			ErrInvalidParameter, maxPercentage, policy.MaxRebasePercentageLimit)
	}
	return nil
}

// ValidateGenesis checks that the genesis parameters yield a well-formed ledger.
func ValidateGenesis(g Genesis) error {
	// 1. Somebody must own the initial supply.
	if g.Holder.IsZero() {
		return fmt.Errorf("%w: genesis holder is the zero address", ErrInvalidParameter)
	}

	// 2. Supply within (0, MaxSupply].
	if g.InitialSupply == nil || g.InitialSupply.IsZero() {
		return fmt.Errorf("%w: initial supply must be positive", ErrInvalidParameter)
	}
	if g.InitialSupply.Gt(MaxSupply) {
		return fmt.Errorf("%w: initial supply exceeds %s", ErrInvalidParameter, MaxSupply.Dec())
	}

	// 3. Deviation is computed relative to the target, so it cannot be zero.
	if g.TargetPrice == nil || g.TargetPrice.IsZero() {
		return fmt.Errorf("%w: target price must be positive", ErrInvalidParameter)
	}

	return ValidateRebaseParameters(g.RebaseInterval, g.MaxRebasePercentage)
}

// validateState checks the scalar invariants of restored state.
func validateState(s State) error {
	if s.TotalSupply.IsZero() || s.TotalSupply.Gt(MaxSupply) {
		return fmt.Errorf("%w: total supply %s out of range", ErrCorruptSnapshot, s.TotalSupply.Dec())
	}
	if s.TotalGons.Lt(&s.TotalSupply) {
		return fmt.Errorf("%w: gon space smaller than supply", ErrCorruptSnapshot)
	}
	if s.TargetPrice.IsZero() {
		return fmt.Errorf("%w: zero target price", ErrCorruptSnapshot)
	}
	if err := ValidateRebaseParameters(s.RebaseInterval, s.MaxRebasePercentage); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return nil
}
