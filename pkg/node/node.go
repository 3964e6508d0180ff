package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/core/types"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

var (
	ErrInvalidNonce = errors.New("invalid nonce")
	ErrUnknownOp    = errors.New("unknown op kind")
	ErrIDMismatch   = errors.New("op id does not match its contents")
)

// OpObserver is told the outcome of every submitted op.
type OpObserver interface {
	ObserveOp(kind types.OpKind, result string)
}

// Config describes how to open a Node.
type Config struct {
	Genesis  ledger.Genesis // Used only when the store holds no ledger yet.
	Deps     ledger.Deps
	Store    ledger.Store // Nil keeps state in memory only.
	Observer OpObserver
	Log      *zap.Logger
}

// Receipt describes an applied op.
type Receipt struct {
	ID          types.Hash
	Kind        types.OpKind
	Caller      types.Address
	Nonce       uint64
	TotalSupply *uint256.Int
}

// Status is a read-only view of the ledger's scalar state.
type Status struct {
	TotalSupply         *uint256.Int
	TargetPrice         *uint256.Int
	CurrentPrice        *uint256.Int
	LastRebase          time.Time
	NextRebase          time.Time
	RebaseInterval      uint64
	MaxRebasePercentage uint8
	Holders             int
}

// Node is the single arbitration point in front of a Ledger: every read and
// write takes the same lock, so ops apply one at a time in submission order.
type Node struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	events   *eventBuffer
	store    ledger.Store
	nonces   map[types.Address]uint64
	observer OpObserver
	log      *zap.Logger
}

// Open restores the ledger from cfg.Store, or initializes it from cfg.Genesis
// when the store is empty.
func Open(cfg Config) (*Node, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	n := &Node{
		events:   &eventBuffer{sink: cfg.Deps.Sink},
		store:    cfg.Store,
		nonces:   make(map[types.Address]uint64),
		observer: cfg.Observer,
		log:      log,
	}

	// Events reach the configured sink only once the op that raised them is on disk.
	deps := cfg.Deps
	deps.Sink = n.events

	var snap *ledger.Snapshot
	if cfg.Store != nil {
		var err error
		snap, err = cfg.Store.Load()
		if err != nil && !errors.Is(err, ledger.ErrNoLedgerInStore) {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
	}

	if snap != nil {
		l, err := ledger.Restore(snap, deps)
		if err != nil {
			return nil, fmt.Errorf("restore ledger: %w", err)
		}
		n.ledger = l
		for addr, nonce := range snap.Nonces {
			n.nonces[addr] = nonce
		}
		log.Info("ledger restored",
			zap.String("total_supply", l.TotalSupply().Dec()),
			zap.Int("holders", l.Holders()))
		return n, nil
	}

	l, err := ledger.New(cfg.Genesis, deps)
	if err != nil {
		return nil, fmt.Errorf("init genesis: %w", err)
	}
	n.ledger = l
	if err := n.commit(l.PendingChanges()); err != nil {
		return nil, err
	}
	l.AcceptChanges()
	n.events.flush()
	log.Info("ledger initialized at genesis",
		zap.String("holder", cfg.Genesis.Holder.Hex()),
		zap.String("total_supply", l.TotalSupply().Dec()))
	return n, nil
}

// Submit verifies and applies a signed op.
func (n *Node) Submit(op *types.Op) (*Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	rcpt, err := n.apply(op)
	if n.observer != nil {
		n.observer.ObserveOp(op.Kind, outcome(err))
	}
	if err != nil {
		n.log.Debug("op rejected",
			zap.Stringer("kind", op.Kind),
			zap.Bool("privileged", op.Kind.Privileged()),
			zap.String("caller", op.Caller.Hex()),
			zap.Error(err))
		return nil, err
	}
	return rcpt, nil
}

func (n *Node) apply(op *types.Op) (*Receipt, error) {
	// 1. Signature: the caller is the signing key.
	if err := wallet.VerifyOp(op); err != nil {
		return nil, err
	}

	// 2. ID integrity.
	if id := op.ComputeID(); op.ID.IsZero() {
		op.ID = id
	} else if op.ID != id {
		return nil, ErrIDMismatch
	}

	// 3. Strict nonce ordering per caller, no gaps.
	expected := n.nonces[op.Caller]
	if op.Nonce != expected {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidNonce, expected, op.Nonce)
	}

	// 4. Ledger operation.
	if err := n.dispatch(op); err != nil {
		n.rollback()
		return nil, err
	}

	// 5. Persist. A failed commit reverts the op so memory never runs ahead of disk.
	changes := n.ledger.PendingChanges()
	changes.Nonces[op.Caller] = expected + 1
	if err := n.commit(changes); err != nil {
		n.rollback()
		return nil, err
	}
	n.ledger.AcceptChanges()
	n.nonces[op.Caller] = expected + 1
	n.events.flush()

	if op.Kind == types.OpRebase {
		n.log.Info("rebase applied", zap.String("total_supply", n.ledger.TotalSupply().Dec()))
	}
	return &Receipt{
		ID:          op.ID,
		Kind:        op.Kind,
		Caller:      op.Caller,
		Nonce:       op.Nonce,
		TotalSupply: n.ledger.TotalSupply(),
	}, nil
}

func (n *Node) dispatch(op *types.Op) error {
	l := n.ledger
	switch op.Kind {
	case types.OpTransfer:
		return l.Transfer(op.Caller, op.To, &op.Amount)
	case types.OpApprove:
		return l.Approve(op.Caller, op.To, &op.Amount)
	case types.OpTransferFrom:
		return l.TransferFrom(op.Caller, op.From, op.To, &op.Amount)
	case types.OpIncreaseAllowance:
		return l.IncreaseAllowance(op.Caller, op.To, &op.Amount)
	case types.OpDecreaseAllowance:
		return l.DecreaseAllowance(op.Caller, op.To, &op.Amount)
	case types.OpUpdatePrice:
		return l.UpdatePrice(op.Caller, &op.Amount)
	case types.OpSetRebaseParameters:
		return l.SetRebaseParameters(op.Caller, op.Interval, op.MaxPercentage)
	case types.OpRebase:
		_, err := l.Rebase(op.Caller)
		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownOp, op.Kind)
	}
}

func (n *Node) commit(changes *ledger.Changes) error {
	if n.store == nil {
		return nil
	}
	if err := n.store.Commit(changes); err != nil {
		n.log.Error("persist ledger changes", zap.Error(err))
		return fmt.Errorf("persist ledger changes: %w", err)
	}
	return nil
}

func (n *Node) rollback() {
	n.ledger.DiscardChanges()
	n.events.discard()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "rejected"
}

// TotalSupply returns the current elastic supply.
func (n *Node) TotalSupply() *uint256.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.TotalSupply()
}

// BalanceOf returns holder's balance in fragments.
func (n *Node) BalanceOf(holder types.Address) *uint256.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.BalanceOf(holder)
}

// Allowance returns spender's remaining allowance over owner's balance.
func (n *Node) Allowance(owner, spender types.Address) *uint256.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Allowance(owner, spender)
}

// Nonce returns the nonce the caller's next op must carry.
func (n *Node) Nonce(caller types.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonces[caller]
}

// Status returns the ledger's scalar state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	st := n.ledger.State()
	return Status{
		TotalSupply:         st.TotalSupply.Clone(),
		TargetPrice:         st.TargetPrice.Clone(),
		CurrentPrice:        st.CurrentPrice.Clone(),
		LastRebase:          st.LastRebase,
		NextRebase:          n.ledger.NextRebaseTime(),
		RebaseInterval:      st.RebaseInterval,
		MaxRebasePercentage: st.MaxRebasePercentage,
		Holders:             n.ledger.Holders(),
	}
}

// RebaseDue reports whether a rebase would pass its interval gate at t.
func (n *Node) RebaseDue(t time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.RebaseDue(t)
}

// eventBuffer holds ledger events until the op that raised them is committed.
type eventBuffer struct {
	sink    ledger.EventSink
	pending []types.Event
}

func (b *eventBuffer) Emit(ev types.Event) {
	b.pending = append(b.pending, ev)
}

func (b *eventBuffer) flush() {
	if b.sink != nil {
		for _, ev := range b.pending {
			b.sink.Emit(ev)
		}
	}
	b.pending = b.pending[:0]
}

func (b *eventBuffer) discard() {
	b.pending = b.pending[:0]
}
