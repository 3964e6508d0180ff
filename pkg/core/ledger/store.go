package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/holiman/uint256"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

var (
	ErrNoLedgerInStore = errors.New("no ledger found in store")
)

// Store defines the interface for persistent ledger storage.
type Store interface {
	Commit(changes *Changes) error
	Load() (*Snapshot, error)
	Close() error
}

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates or opens a BadgerDB store at the given path.
// If path is empty, it opens an in-memory store (for testing).
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// Reduce logging noise
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db: db,
	}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Keys:
// Scalar state: "ledger:state" -> gob(stateRecord)
// Balance:      "balance:<addr>" -> 32-byte big-endian gons
// Allowance:    "allowance:<owner>:<spender>" -> 32-byte big-endian gons
// Nonce:        "nonce:<addr>" -> 8-byte big-endian
const (
	stateKey        = "ledger:state"
	balancePrefix   = "balance:"
	allowancePrefix = "allowance:"
	noncePrefix     = "nonce:"
)

// stateRecord is the gob form of State.
type stateRecord struct {
	TotalGons           [32]byte
	TotalSupply         [32]byte
	TargetPrice         [32]byte
	CurrentPrice        [32]byte
	LastRebaseUnix      int64
	RebaseInterval      uint64
	MaxRebasePercentage uint8
}

func encodeState(st *State) ([]byte, error) {
	rec := stateRecord{
		TotalGons:           st.TotalGons.Bytes32(),
		TotalSupply:         st.TotalSupply.Bytes32(),
		TargetPrice:         st.TargetPrice.Bytes32(),
		CurrentPrice:        st.CurrentPrice.Bytes32(),
		LastRebaseUnix:      st.LastRebase.Unix(),
		RebaseInterval:      st.RebaseInterval,
		MaxRebasePercentage: st.MaxRebasePercentage,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeState(val []byte) (State, error) {
	var rec stateRecord
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&rec); err != nil {
		return State{}, err
	}
	var st State
	st.TotalGons.SetBytes32(rec.TotalGons[:])
	st.TotalSupply.SetBytes32(rec.TotalSupply[:])
	st.TargetPrice.SetBytes32(rec.TargetPrice[:])
	st.CurrentPrice.SetBytes32(rec.CurrentPrice[:])
	st.LastRebase = time.Unix(rec.LastRebaseUnix, 0)
	st.RebaseInterval = rec.RebaseInterval
	st.MaxRebasePercentage = rec.MaxRebasePercentage
	return st, nil
}

func balanceKey(addr types.Address) []byte {
	return []byte(balancePrefix + addr.Hex())
}

func allowanceKey(k AllowanceKey) []byte {
	return []byte(allowancePrefix + k.Owner.Hex() + ":" + k.Spender.Hex())
}

func nonceKey(addr types.Address) []byte {
	return []byte(noncePrefix + addr.Hex())
}

// Commit writes a change-set atomically. Zero amounts delete their key.
func (s *BadgerStore) Commit(changes *Changes) error {
	if changes == nil || changes.Empty() {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if changes.State != nil {
			val, err := encodeState(changes.State)
			if err != nil {
				return fmt.Errorf("encode state: %w", err)
			}
			if err := txn.Set([]byte(stateKey), val); err != nil {
				return err
			}
		}

		for addr, bal := range changes.Balances {
			if err := setOrDelete(txn, balanceKey(addr), &bal); err != nil {
				return err
			}
		}

		for key, v := range changes.Allowances {
			if err := setOrDelete(txn, allowanceKey(key), &v); err != nil {
				return err
			}
		}

		for addr, nonce := range changes.Nonces {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, nonce)
			if err := txn.Set(nonceKey(addr), buf); err != nil {
				return err
			}
		}
		return nil
	})
}

func setOrDelete(txn *badger.Txn, key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return txn.Delete(key)
	}
	val := v.Bytes32()
	return txn.Set(key, val[:])
}

// decodeGons reads a fixed-width 32-byte big-endian amount.
func decodeGons(val []byte) (uint256.Int, error) {
	if len(val) != 32 {
		return uint256.Int{}, fmt.Errorf("%w: amount is %d bytes, want 32", ErrCorruptSnapshot, len(val))
	}
	var v uint256.Int
	v.SetBytes32(val)
	return v, nil
}

// Load reads the full ledger snapshot. Returns ErrNoLedgerInStore for a fresh store.
func (s *BadgerStore) Load() (*Snapshot, error) {
	snap := &Snapshot{
		Balances:   make(map[types.Address]uint256.Int),
		Allowances: make(map[AllowanceKey]uint256.Int),
		Nonces:     make(map[types.Address]uint64),
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNoLedgerInStore
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			st, err := decodeState(val)
			snap.State = st
			return err
		}); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}

		if err := scanPrefix(txn, balancePrefix, func(rest string, val []byte) error {
			addr, err := types.AddressFromHex(rest)
			if err != nil {
				return err
			}
			bal, err := decodeGons(val)
			if err != nil {
				return fmt.Errorf("balance for %s: %w", rest, err)
			}
			snap.Balances[addr] = bal
			return nil
		}); err != nil {
			return err
		}

		if err := scanPrefix(txn, allowancePrefix, func(rest string, val []byte) error {
			owner, spender, ok := strings.Cut(rest, ":")
			if !ok {
				return fmt.Errorf("malformed allowance key %q", rest)
			}
			var key AllowanceKey
			var err error
			if key.Owner, err = types.AddressFromHex(owner); err != nil {
				return err
			}
			if key.Spender, err = types.AddressFromHex(spender); err != nil {
				return err
			}
			v, err := decodeGons(val)
			if err != nil {
				return fmt.Errorf("allowance %s: %w", rest, err)
			}
			snap.Allowances[key] = v
			return nil
		}); err != nil {
			return err
		}

		return scanPrefix(txn, noncePrefix, func(rest string, val []byte) error {
			addr, err := types.AddressFromHex(rest)
			if err != nil {
				return err
			}
			if len(val) != 8 {
				return fmt.Errorf("%w: malformed nonce for %s", ErrCorruptSnapshot, rest)
			}
			snap.Nonces[addr] = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// scanPrefix calls fn with the key suffix after prefix and each value. val is only
// valid for the duration of the call.
func scanPrefix(txn *badger.Txn, prefix string, fn func(rest string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		rest := strings.TrimPrefix(string(item.Key()), prefix)
		if err := item.Value(func(val []byte) error {
			return fn(rest, val)
		}); err != nil {
			return fmt.Errorf("%s%s: %w", prefix, rest, err)
		}
	}
	return nil
}
