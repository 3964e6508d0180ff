package ledger

import "errors"

var (
	ErrUnauthorized          = errors.New("caller is not a privileged operator")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidParameter      = errors.New("invalid parameter")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrRebaseTooEarly        = errors.New("rebase interval has not elapsed")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow   = errors.New("arithmetic underflow")
	ErrCorruptSnapshot       = errors.New("ledger snapshot violates supply invariants")
)
