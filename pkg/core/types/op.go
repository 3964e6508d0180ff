package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// OpKind identifies which ledger operation an Op requests.
type OpKind uint8

const (
	OpTransfer            OpKind = 1
	OpApprove             OpKind = 2
	OpTransferFrom        OpKind = 3
	OpIncreaseAllowance   OpKind = 4
	OpDecreaseAllowance   OpKind = 5
	OpUpdatePrice         OpKind = 6
	OpSetRebaseParameters OpKind = 7
	OpRebase              OpKind = 8
)

var opKindNames = map[OpKind]string{
	OpTransfer:            "transfer",
	OpApprove:             "approve",
	OpTransferFrom:        "transferFrom",
	OpIncreaseAllowance:   "increaseAllowance",
	OpDecreaseAllowance:   "decreaseAllowance",
	OpUpdatePrice:         "updatePrice",
	OpSetRebaseParameters: "setRebaseParameters",
	OpRebase:              "rebase",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", uint8(k))
}

// Privileged reports whether the operation requires an operator caller.
func (k OpKind) Privileged() bool {
	return k == OpUpdatePrice || k == OpSetRebaseParameters || k == OpRebase
}

// ParseOpKind resolves an operation name as produced by OpKind.String.
func ParseOpKind(s string) (OpKind, error) {
	for k, name := range opKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown op kind %q", s)
}

// Op is a signed request to mutate the ledger. The caller is the ed25519 public key
// that produced Signature.
type Op struct {
	ID            Hash
	Kind          OpKind
	Timestamp     time.Time
	Caller        Address
	From          Address     // Source holder for transferFrom.
	To            Address     // Recipient, or spender for allowance ops.
	Amount        uint256.Int // Fragments, or the new price for updatePrice.
	Interval      uint64      // Seconds, setRebaseParameters only.
	MaxPercentage uint8       // setRebaseParameters only.
	Nonce         uint64      // Caller's sequential nonce.
	Signature     []byte
}

// OpPayloadSize is the length of Serialize's output.
const OpPayloadSize = 1 + 8 + 3*AddressSize + 32 + 8 + 1 + 8

// Serialize returns a deterministic byte encoding of the op fields
// (excluding ID and Signature) for hashing and signing.
// Field order: Kind(1) || Timestamp(8) || Caller(32) || From(32) || To(32) ||
//
//	Amount(32) || Interval(8) || MaxPercentage(1) || Nonce(8)
func (op *Op) Serialize() []byte {
	buf := make([]byte, OpPayloadSize)
	off := 0
	buf[off] = byte(op.Kind)
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], uint64(op.Timestamp.Unix()))
	off += 8
	off += copy(buf[off:], op.Caller[:])
	off += copy(buf[off:], op.From[:])
	off += copy(buf[off:], op.To[:])
	amount := op.Amount.Bytes32()
	off += copy(buf[off:], amount[:])
	binary.BigEndian.PutUint64(buf[off:off+8], op.Interval)
	off += 8
	buf[off] = op.MaxPercentage
	off++
	binary.BigEndian.PutUint64(buf[off:off+8], op.Nonce)
	return buf
}

// ComputeID computes the SHA-256 hash of the serialized op fields.
func (op *Op) ComputeID() Hash {
	return sha256.Sum256(op.Serialize())
}
