package rebaser

import (
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chronodrachma/elastic/pkg/core/ledger"
	"github.com/chronodrachma/elastic/pkg/node"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	start  = time.Unix(1_700_000_000, 0)
	target = uint256.MustFromDecimal("1000000000000000000")
)

func newNode(t *testing.T, clock ledger.Clock) (*node.Node, ed25519.PrivateKey) {
	t.Helper()
	_, operator, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	n, err := node.Open(node.Config{
		Genesis: ledger.Genesis{
			Holder:              wallet.AddressOf(operator),
			InitialSupply:       uint256.NewInt(10_000_000),
			TargetPrice:         target,
			RebaseInterval:      3600,
			MaxRebasePercentage: 10,
		},
		Deps: ledger.Deps{
			Authority: ledger.NewStaticAuthority(wallet.AddressOf(operator)),
			Clock:     clock,
		},
	})
	require.NoError(t, err)
	return n, operator
}

type failingPrice struct{}

func (failingPrice) Price(context.Context) (*uint256.Int, error) {
	return nil, errors.New("feed offline")
}

func TestRunNowSkipsUntilDue(t *testing.T) {
	clock := ledger.NewManualClock(start)
	n, key := newNode(t, clock)
	r, err := New(n, Config{Key: key, Prices: NewStaticPrice(uint256.MustFromDecimal("1200000000000000000")), Clock: clock})
	require.NoError(t, err)

	res, err := r.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Rebased)
	assert.Equal(t, uint64(0), n.Nonce(wallet.AddressOf(key)), "no ops submitted before the interval elapses")

	clock.Advance(time.Hour)
	res, err = r.RunNow(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Rebased)
	assert.Equal(t, "1200000000000000000", res.Price)
	assert.Equal(t, "11000000", res.TotalSupply)
	assert.Equal(t, uint64(2), n.Nonce(wallet.AddressOf(key)))

	res, err = r.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Rebased)
}

func TestRunNowPriceFailure(t *testing.T) {
	clock := ledger.NewManualClock(start.Add(time.Hour))
	n, key := newNode(t, clock)
	r, err := New(n, Config{Key: key, Prices: failingPrice{}, Clock: clock})
	require.NoError(t, err)

	_, err = r.RunNow(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(10_000_000), n.TotalSupply().Uint64())
	assert.Equal(t, uint64(0), n.Nonce(wallet.AddressOf(key)))
}

func TestRunNowUnprivilegedKey(t *testing.T) {
	clock := ledger.NewManualClock(start.Add(time.Hour))
	n, _ := newNode(t, clock)
	_, stranger, err := wallet.GenerateKeyPair()
	require.NoError(t, err)

	r, err := New(n, Config{Key: stranger, Prices: NewStaticPrice(target), Clock: clock})
	require.NoError(t, err)

	_, err = r.RunNow(context.Background())
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Prices: NewStaticPrice(target)})
	assert.ErrorIs(t, err, wallet.ErrInvalidKey)

	_, key, err := wallet.GenerateKeyPair()
	require.NoError(t, err)
	_, err = New(nil, Config{Key: key})
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	clock := ledger.NewManualClock(start)
	n, key := newNode(t, clock)
	r, err := New(n, Config{Schedule: "not a schedule", Key: key, Prices: NewStaticPrice(target), Clock: clock})
	require.NoError(t, err)

	assert.Error(t, r.Start(context.Background()))
	r.Stop()
}

func TestScheduledRun(t *testing.T) {
	clock := ledger.NewManualClock(start.Add(time.Hour))
	n, key := newNode(t, clock)
	r, err := New(n, Config{
		Schedule: "@every 1s",
		Key:      key,
		Prices:   NewStaticPrice(uint256.MustFromDecimal("900000000000000000")),
		Clock:    clock,
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool {
		return n.TotalSupply().Uint64() == 9_000_000
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFilePrice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "price")
	src := FilePrice{Path: path}

	_, err := src.Price(context.Background())
	assert.Error(t, err, "missing file")

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, err = src.Price(context.Background())
	assert.ErrorIs(t, err, ErrNoPrice)

	require.NoError(t, os.WriteFile(path, []byte("1050000000000000000\n"), 0o600))
	p, err := src.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1050000000000000000", p.Dec())

	require.NoError(t, os.WriteFile(path, []byte("0xde0b6b3a7640000"), 0o600))
	p, err = src.Price(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Eq(target))

	require.NoError(t, os.WriteFile(path, []byte("one dollar"), 0o600))
	_, err = src.Price(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Price(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
