package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"strings"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

var (
	ErrInvalidKey       = errors.New("invalid private key length")
	ErrInvalidSignature = errors.New("invalid op signature")
)

// GenerateKeyPair generates a new Ed25519 keypair.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

// SaveKey saves the private key to a file in hex format.
func SaveKey(filename string, privKey ed25519.PrivateKey) error {
	hexKey := hex.EncodeToString(privKey)
	return os.WriteFile(filename, []byte(hexKey), 0600)
}

// LoadKey loads a private key from a file (hex format).
func LoadKey(filename string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}
	return ed25519.PrivateKey(key), nil
}

// AddressOf returns the ledger address controlled by privKey.
func AddressOf(privKey ed25519.PrivateKey) types.Address {
	var addr types.Address
	copy(addr[:], privKey.Public().(ed25519.PublicKey))
	return addr
}

// SignOp sets the op's Caller to the key's address, then fills ID and Signature.
func SignOp(op *types.Op, privKey ed25519.PrivateKey) error {
	if len(privKey) != ed25519.PrivateKeySize {
		return ErrInvalidKey
	}

	op.Caller = AddressOf(privKey)
	op.ID = op.ComputeID()
	op.Signature = ed25519.Sign(privKey, op.Serialize())
	return nil
}

// VerifyOp checks that the op was signed by its Caller.
func VerifyOp(op *types.Op) error {
	if len(op.Signature) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(op.Caller.PublicKey(), op.Serialize(), op.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
