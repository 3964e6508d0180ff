package wallet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

func TestKeyFileRoundTrip(t *testing.T) {
	_, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.key")
	require.NoError(t, SaveKey(path, priv))
	// Editors like to append newlines.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loaded, err := LoadKey(path)
	require.NoError(t, err)
	assert.Equal(t, priv, loaded)
}

func TestLoadKeyRejectsShortKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0600))

	_, err := LoadKey(path)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSignAndVerifyOp(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	op := &types.Op{
		Kind:      types.OpTransfer,
		Timestamp: time.Unix(1_700_000_000, 0),
		To:        types.Address{0x02},
		Amount:    *uint256.NewInt(42),
		Nonce:     0,
	}
	require.NoError(t, SignOp(op, priv))

	assert.Equal(t, []byte(pub), op.Caller[:])
	assert.Equal(t, op.ComputeID(), op.ID)
	assert.NoError(t, VerifyOp(op))

	op.Amount = *uint256.NewInt(43)
	assert.ErrorIs(t, VerifyOp(op), ErrInvalidSignature)

	op.Signature = nil
	assert.ErrorIs(t, VerifyOp(op), ErrInvalidSignature)
}
