package rpc

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/chronodrachma/elastic/pkg/core/types"
)

// OpRequest is the JSON form of a signed op accepted by POST /op.
// Amounts are base-10 strings in fragments (prices for updatePrice).
type OpRequest struct {
	ID            string `json:"id,omitempty"`
	Kind          string `json:"kind"`
	Caller        string `json:"caller"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Interval      uint64 `json:"interval,omitempty"`
	MaxPercentage uint8  `json:"max_percentage,omitempty"`
	Nonce         uint64 `json:"nonce"`
	Timestamp     int64  `json:"timestamp"` // Unix seconds.
	Signature     string `json:"signature"`
}

// NewOpRequest encodes a signed op for transport.
func NewOpRequest(op *types.Op) OpRequest {
	req := OpRequest{
		Kind:          op.Kind.String(),
		Caller:        op.Caller.Hex(),
		Amount:        op.Amount.Dec(),
		Interval:      op.Interval,
		MaxPercentage: op.MaxPercentage,
		Nonce:         op.Nonce,
		Timestamp:     op.Timestamp.Unix(),
		Signature:     hex.EncodeToString(op.Signature),
	}
	if !op.ID.IsZero() {
		req.ID = op.ID.Hex()
	}
	if !op.From.IsZero() {
		req.From = op.From.Hex()
	}
	if !op.To.IsZero() {
		req.To = op.To.Hex()
	}
	return req
}

// Op decodes the request. Signature and nonce are checked by the node.
func (r OpRequest) Op() (*types.Op, error) {
	kind, err := types.ParseOpKind(r.Kind)
	if err != nil {
		return nil, err
	}
	caller, err := types.AddressFromHex(r.Caller)
	if err != nil {
		return nil, fmt.Errorf("caller: %w", err)
	}
	op := &types.Op{
		Kind:          kind,
		Timestamp:     time.Unix(r.Timestamp, 0),
		Caller:        caller,
		Interval:      r.Interval,
		MaxPercentage: r.MaxPercentage,
		Nonce:         r.Nonce,
	}

	if r.From != "" {
		if op.From, err = types.AddressFromHex(r.From); err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
	}
	if r.To != "" {
		if op.To, err = types.AddressFromHex(r.To); err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
	}
	if r.Amount != "" {
		amount, err := types.ParseAmount(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}
		op.Amount = *amount
	}
	if r.ID != "" {
		if op.ID, err = types.HashFromHex(r.ID); err != nil {
			return nil, fmt.Errorf("id: %w", err)
		}
	}
	if op.Signature, err = hex.DecodeString(r.Signature); err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	return op, nil
}
