package node

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/core/types"
	"github.com/chronodrachma/elastic/pkg/journal"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

var genesisTime = time.Unix(1_700_000_000, 0)

type testKeys struct {
	operator ed25519.PrivateKey
	holder   ed25519.PrivateKey
}

func newKeys(t *testing.T) testKeys {
	t.Helper()
	_, op, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	_, holder, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	return testKeys{operator: op, holder: holder}
}

type testNode struct {
	*Node
	keys   testKeys
	clock  *ledger.ManualClock
	events *journal.Memory
	store  *ledger.BadgerStore
}

func (k testKeys) config(clock ledger.Clock, sink ledger.EventSink, store ledger.Store) Config {
	return Config{
		Genesis: ledger.Genesis{
			Holder:              wallet.AddressOf(k.holder),
			InitialSupply:       uint256.NewInt(10_000_000),
			TargetPrice:         uint256.MustFromDecimal("1000000000000000000"),
			RebaseInterval:      3600,
			MaxRebasePercentage: 10,
		},
		Deps: ledger.Deps{
			Authority: ledger.NewStaticAuthority(wallet.AddressOf(k.operator)),
			Clock:     clock,
			Sink:      sink,
		},
		Store: store,
	}
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	store, err := ledger.NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	keys := newKeys(t)
	clock := ledger.NewManualClock(genesisTime)
	events := &journal.Memory{}
	n, err := Open(keys.config(clock, events, store))
	require.NoError(t, err)
	return &testNode{Node: n, keys: keys, clock: clock, events: events, store: store}
}

func (tn *testNode) submit(t *testing.T, key ed25519.PrivateKey, op *types.Op) (*Receipt, error) {
	t.Helper()
	op.Timestamp = tn.clock.Now()
	op.Nonce = tn.Nonce(wallet.AddressOf(key))
	require.NoError(t, wallet.SignOp(op, key))
	return tn.Submit(op)
}

func TestOpenInitializesGenesis(t *testing.T) {
	tn := newTestNode(t)

	assert.Equal(t, uint64(10_000_000), tn.TotalSupply().Uint64())
	assert.Equal(t, uint64(10_000_000), tn.BalanceOf(wallet.AddressOf(tn.keys.holder)).Uint64())

	st := tn.Status()
	assert.Equal(t, genesisTime.Add(time.Hour).Unix(), st.NextRebase.Unix())
	assert.Equal(t, 1, st.Holders)
}

func TestSubmitTransfer(t *testing.T) {
	tn := newTestNode(t)
	bob := types.Address{0x0B}

	rcpt, err := tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpTransfer, To: bob, Amount: *uint256.NewInt(250)})
	require.NoError(t, err)
	assert.Equal(t, types.OpTransfer, rcpt.Kind)
	assert.Equal(t, uint64(0), rcpt.Nonce)
	assert.False(t, rcpt.ID.IsZero())

	assert.Equal(t, uint64(250), tn.BalanceOf(bob).Uint64())
	assert.Equal(t, uint64(1), tn.Nonce(wallet.AddressOf(tn.keys.holder)))
}

func TestSubmitRejectsReplayAndForgery(t *testing.T) {
	tn := newTestNode(t)
	bob := types.Address{0x0B}

	op := &types.Op{Kind: types.OpTransfer, To: bob, Amount: *uint256.NewInt(1)}
	_, err := tn.submit(t, tn.keys.holder, op)
	require.NoError(t, err)

	_, err = tn.Submit(op)
	assert.ErrorIs(t, err, ErrInvalidNonce)

	forged := *op
	forged.Nonce = 1
	forged.ID = types.Hash{}
	_, err = tn.Submit(&forged)
	assert.ErrorIs(t, err, wallet.ErrInvalidSignature)

	tampered := &types.Op{Kind: types.OpTransfer, To: bob, Amount: *uint256.NewInt(1), Nonce: 1}
	require.NoError(t, wallet.SignOp(tampered, tn.keys.holder))
	tampered.ID = types.Hash{0x01}
	_, err = tn.Submit(tampered)
	assert.ErrorIs(t, err, ErrIDMismatch)

	assert.Equal(t, uint64(1), tn.BalanceOf(bob).Uint64())
}

func TestRejectedOpDoesNotConsumeNonce(t *testing.T) {
	tn := newTestNode(t)
	holder := wallet.AddressOf(tn.keys.holder)

	_, err := tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpTransfer, To: types.Address{0x0B}, Amount: *uint256.NewInt(20_000_000)})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(0), tn.Nonce(holder))

	_, err = tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpRebase})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, uint64(0), tn.Nonce(holder))
}

func TestOperatorRebaseFlow(t *testing.T) {
	tn := newTestNode(t)

	_, err := tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpRebase})
	assert.ErrorIs(t, err, ledger.ErrRebaseTooEarly)

	tn.clock.Advance(time.Hour)
	_, err = tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpUpdatePrice, Amount: *uint256.MustFromDecimal("1200000000000000000")})
	require.NoError(t, err)

	rcpt, err := tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpRebase})
	require.NoError(t, err)
	assert.Equal(t, uint64(11_000_000), rcpt.TotalSupply.Uint64())
	assert.Equal(t, uint64(11_000_000), tn.BalanceOf(wallet.AddressOf(tn.keys.holder)).Uint64())

	_, err = tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpSetRebaseParameters, Interval: 60, MaxPercentage: 20})
	require.NoError(t, err)
	st := tn.Status()
	assert.Equal(t, uint64(60), st.RebaseInterval)
	assert.Equal(t, uint8(20), st.MaxRebasePercentage)

	kinds := make([]types.EventKind, 0)
	for _, ev := range tn.events.Events() {
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []types.EventKind{
		types.EventTransfer, types.EventPriceUpdated, types.EventRebased, types.EventRebaseParametersUpdated,
	}, kinds)
}

func TestAllowanceOps(t *testing.T) {
	tn := newTestNode(t)
	_, spenderKey, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	owner := wallet.AddressOf(tn.keys.holder)
	spender := wallet.AddressOf(spenderKey)
	carol := types.Address{0x0C}

	_, err = tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpApprove, To: spender, Amount: *uint256.NewInt(100)})
	require.NoError(t, err)
	_, err = tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpIncreaseAllowance, To: spender, Amount: *uint256.NewInt(50)})
	require.NoError(t, err)
	assert.Equal(t, uint64(150), tn.Allowance(owner, spender).Uint64())

	_, err = tn.submit(t, spenderKey, &types.Op{Kind: types.OpTransferFrom, From: owner, To: carol, Amount: *uint256.NewInt(120)})
	require.NoError(t, err)
	assert.Equal(t, uint64(30), tn.Allowance(owner, spender).Uint64())
	assert.Equal(t, uint64(120), tn.BalanceOf(carol).Uint64())

	_, err = tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpDecreaseAllowance, To: spender, Amount: *uint256.NewInt(1_000)})
	require.NoError(t, err)
	assert.True(t, tn.Allowance(owner, spender).IsZero())
}

func TestUnknownOpKind(t *testing.T) {
	tn := newTestNode(t)
	_, err := tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpKind(99)})
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestReopenRestoresState(t *testing.T) {
	tn := newTestNode(t)
	bob := types.Address{0x0B}

	_, err := tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpTransfer, To: bob, Amount: *uint256.NewInt(777)})
	require.NoError(t, err)
	tn.clock.Advance(time.Hour)
	_, err = tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpUpdatePrice, Amount: *uint256.MustFromDecimal("900000000000000000")})
	require.NoError(t, err)
	_, err = tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpRebase})
	require.NoError(t, err)

	// A different genesis must be ignored once the store holds a ledger.
	cfg := tn.keys.config(tn.clock, nil, tn.store)
	cfg.Genesis.InitialSupply = uint256.NewInt(1)
	reopened, err := Open(cfg)
	require.NoError(t, err)

	assert.Equal(t, uint64(9_000_000), reopened.TotalSupply().Uint64())
	assert.True(t, reopened.BalanceOf(bob).Eq(tn.BalanceOf(bob)))
	assert.Equal(t, uint64(1), reopened.Nonce(wallet.AddressOf(tn.keys.holder)))
	assert.Equal(t, uint64(2), reopened.Nonce(wallet.AddressOf(tn.keys.operator)))
	assert.False(t, reopened.RebaseDue(tn.clock.Now()))
}

func TestConcurrentSubmitsSerialize(t *testing.T) {
	tn := newTestNode(t)
	const senders = 16

	keys := make([]ed25519.PrivateKey, senders)
	for i := range keys {
		_, k, err := wallet.GenerateKeyPair()
		require.NoError(t, err)
		keys[i] = k
		_, err = tn.submit(t, tn.keys.holder, &types.Op{Kind: types.OpTransfer, To: wallet.AddressOf(k), Amount: *uint256.NewInt(1_000)})
		require.NoError(t, err)
	}

	sink := types.Address{0x5A}
	var wg sync.WaitGroup
	errs := make(chan error, senders*10)
	for _, k := range keys {
		wg.Add(1)
		go func(k ed25519.PrivateKey) {
			defer wg.Done()
			for nonce := uint64(0); nonce < 10; nonce++ {
				op := &types.Op{Kind: types.OpTransfer, To: sink, Amount: *uint256.NewInt(10), Nonce: nonce, Timestamp: genesisTime}
				if err := wallet.SignOp(op, k); err != nil {
					errs <- err
					return
				}
				if _, err := tn.Submit(op); err != nil {
					errs <- err
				}
			}
		}(k)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("submit failed: %v", err)
	}

	assert.Equal(t, uint64(senders*10*10), tn.BalanceOf(sink).Uint64())
	assert.Equal(t, uint64(10_000_000), tn.TotalSupply().Uint64())
}

var errDiskFull = errors.New("disk full")

// failingStore fails the next `failures` commits, then delegates.
type failingStore struct {
	ledger.Store
	failures int
}

func (s *failingStore) Commit(c *ledger.Changes) error {
	if s.failures > 0 {
		s.failures--
		return errDiskFull
	}
	return s.Store.Commit(c)
}

func TestCommitFailureLeavesNodeUntouched(t *testing.T) {
	bob := types.Address{0x0B}
	carol := types.Address{0x0C}

	tests := []struct {
		name     string
		operator bool
		prepare  func(t *testing.T, tn *testNode)
		op       func() *types.Op
	}{
		{
			name: "transfer",
			op: func() *types.Op {
				return &types.Op{Kind: types.OpTransfer, To: bob, Amount: *uint256.NewInt(250)}
			},
		},
		{
			name: "approve",
			op: func() *types.Op {
				return &types.Op{Kind: types.OpApprove, To: carol, Amount: *uint256.NewInt(75)}
			},
		},
		{
			name:     "rebase",
			operator: true,
			prepare: func(t *testing.T, tn *testNode) {
				tn.clock.Advance(time.Hour)
				_, err := tn.submit(t, tn.keys.operator, &types.Op{Kind: types.OpUpdatePrice, Amount: *uint256.MustFromDecimal("1200000000000000000")})
				require.NoError(t, err)
			},
			op: func() *types.Op { return &types.Op{Kind: types.OpRebase} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			badgerStore, err := ledger.NewBadgerStore("")
			require.NoError(t, err)
			t.Cleanup(func() { badgerStore.Close() })
			store := &failingStore{Store: badgerStore}

			keys := newKeys(t)
			clock := ledger.NewManualClock(genesisTime)
			events := &journal.Memory{}
			n, err := Open(keys.config(clock, events, store))
			require.NoError(t, err)
			tn := &testNode{Node: n, keys: keys, clock: clock, events: events, store: badgerStore}
			if tt.prepare != nil {
				tt.prepare(t, tn)
			}

			key := keys.holder
			if tt.operator {
				key = keys.operator
			}
			caller := wallet.AddressOf(key)
			holder := wallet.AddressOf(keys.holder)

			nonceBefore := tn.Nonce(caller)
			statusBefore := tn.Status()
			eventsBefore := len(events.Events())

			store.failures = 1
			_, err = tn.submit(t, key, tt.op())
			require.ErrorIs(t, err, errDiskFull)

			assert.Equal(t, nonceBefore, tn.Nonce(caller), "failed commit must not consume the nonce")
			assert.Equal(t, statusBefore, tn.Status())
			assert.True(t, tn.BalanceOf(bob).IsZero())
			assert.True(t, tn.Allowance(holder, carol).IsZero())
			assert.Len(t, events.Events(), eventsBefore, "no events for an op that was not persisted")

			// An unrelated op commits fine and must not drag the failed records along.
			dave := types.Address{0x0D}
			_, err = tn.submit(t, keys.holder, &types.Op{Kind: types.OpIncreaseAllowance, To: dave, Amount: *uint256.NewInt(1)})
			require.NoError(t, err)

			reopened, err := Open(keys.config(clock, nil, badgerStore))
			require.NoError(t, err)
			assert.Equal(t, tn.Status().TotalSupply, reopened.Status().TotalSupply)
			for _, addr := range []types.Address{holder, bob, carol, dave} {
				assert.True(t, reopened.BalanceOf(addr).Eq(tn.BalanceOf(addr)), "balance of %s", addr.Hex())
				assert.Equal(t, tn.Nonce(addr), reopened.Nonce(addr))
			}
			assert.True(t, reopened.Allowance(holder, carol).Eq(tn.Allowance(holder, carol)))
			assert.True(t, reopened.Allowance(holder, dave).Eq(tn.Allowance(holder, dave)))

			// The same op can be retried with the same nonce once the store recovers.
			nonce := tn.Nonce(caller)
			_, err = tn.submit(t, key, tt.op())
			require.NoError(t, err)
			assert.Equal(t, nonce+1, tn.Nonce(caller))
		})
	}
}
