package rebaser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
)

var ErrNoPrice = errors.New("no price available")

// PriceSource supplies the current market price, scaled by the ledger's price precision.
type PriceSource interface {
	Price(ctx context.Context) (*uint256.Int, error)
}

// StaticPrice always reports the same price.
type StaticPrice struct {
	value *uint256.Int
}

func NewStaticPrice(price *uint256.Int) *StaticPrice {
	if price == nil {
		return &StaticPrice{}
	}
	return &StaticPrice{value: price.Clone()}
}

func (s *StaticPrice) Price(context.Context) (*uint256.Int, error) {
	if s.value == nil {
		return nil, ErrNoPrice
	}
	return s.value.Clone(), nil
}

// FilePrice reads a decimal (or 0x-prefixed hex) price from a file on every
// call. An external feeder process owns the file.
type FilePrice struct {
	Path string
}

func (f FilePrice) Price(ctx context.Context) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read price file: %w", err)
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoPrice, f.Path)
	}

	var price *uint256.Int
	if strings.HasPrefix(s, "0x") {
		price, err = uint256.FromHex(s)
	} else {
		price, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", s, err)
	}
	return price, nil
}
