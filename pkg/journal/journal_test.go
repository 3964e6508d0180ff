package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

func TestSQLiteRecorder(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	defer rec.Close()
	rec.now = func() time.Time { return time.Unix(1_700_000_100, 0) }

	rec.Emit(&types.TransferEvent{From: types.Address{0x01}, To: types.Address{0x02}, Value: *uint256.NewInt(500)})
	rec.Emit(&types.RebasedEvent{Epoch: time.Unix(1_700_000_000, 0), TotalSupply: *uint256.NewInt(11_000_000)})
	rec.Emit(&types.RebaseParametersUpdatedEvent{IntervalSeconds: 3600, MaxPercentage: 5})

	entries, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "RebaseParametersUpdated", entries[0].Kind)
	assert.Equal(t, uint64(3600), entries[0].IntervalSeconds)
	assert.Equal(t, uint8(5), entries[0].MaxPercentage)

	assert.Equal(t, "Rebased", entries[1].Kind)
	assert.Equal(t, "11000000", entries[1].Value)
	assert.Equal(t, int64(1_700_000_000), entries[1].Epoch)

	assert.Equal(t, "Transfer", entries[2].Kind)
	assert.Equal(t, types.Address{0x02}.Hex(), entries[2].To)
	assert.Equal(t, "500", entries[2].Value)
	assert.Equal(t, int64(1_700_000_100), entries[2].RecordedAt)

	latest, err := rec.Recent(1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	sink := Multi{a, NoopRecorder{}, b}

	sink.Emit(&types.PriceUpdatedEvent{Price: *uint256.NewInt(7)})

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, types.EventPriceUpdated, a.Events()[0].Kind())
}

func TestNewEntryApproval(t *testing.T) {
	e := NewEntry(&types.ApprovalEvent{Owner: types.Address{0x01}, Spender: types.Address{0x03}, Value: *uint256.NewInt(9)})
	assert.Equal(t, "Approval", e.Kind)
	assert.Equal(t, types.Address{0x01}.Hex(), e.From)
	assert.Equal(t, types.Address{0x03}.Hex(), e.To)
	assert.Equal(t, "9", e.Value)
}
