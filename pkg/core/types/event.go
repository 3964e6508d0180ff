package types

import (
	"time"

	"github.com/holiman/uint256"
)

// EventKind identifies the type of a ledger notification.
type EventKind uint8

const (
	EventTransfer                EventKind = 1
	EventApproval                EventKind = 2
	EventRebased                 EventKind = 3
	EventPriceUpdated            EventKind = 4
	EventRebaseParametersUpdated EventKind = 5
)

func (k EventKind) String() string {
	switch k {
	case EventTransfer:
		return "Transfer"
	case EventApproval:
		return "Approval"
	case EventRebased:
		return "Rebased"
	case EventPriceUpdated:
		return "PriceUpdated"
	case EventRebaseParametersUpdated:
		return "RebaseParametersUpdated"
	default:
		return "Unknown"
	}
}

// Event is the generic interface for all ledger notifications.
// Amounts carried by events are always in fragments, never gons.
type Event interface {
	Kind() EventKind
}

// TransferEvent reports a balance movement.
type TransferEvent struct {
	From  Address
	To    Address
	Value uint256.Int
}

func (e *TransferEvent) Kind() EventKind { return EventTransfer }

// ApprovalEvent reports the resulting allowance after any allowance change.
type ApprovalEvent struct {
	Owner   Address
	Spender Address
	Value   uint256.Int
}

func (e *ApprovalEvent) Kind() EventKind { return EventApproval }

// RebasedEvent reports the total supply after a rebase, including no-op rebases.
type RebasedEvent struct {
	Epoch       time.Time
	TotalSupply uint256.Int
}

func (e *RebasedEvent) Kind() EventKind { return EventRebased }

// PriceUpdatedEvent reports a new oracle price.
type PriceUpdatedEvent struct {
	Price uint256.Int
}

func (e *PriceUpdatedEvent) Kind() EventKind { return EventPriceUpdated }

// RebaseParametersUpdatedEvent reports new rebase policy values.
type RebaseParametersUpdatedEvent struct {
	IntervalSeconds uint64
	MaxPercentage   uint8
}

func (e *RebaseParametersUpdatedEvent) Kind() EventKind { return EventRebaseParametersUpdated }
