// Package codec serializes portfolio batches with MessagePack for the
// transports that accept them as an opaque blob.
package codec

import (
	"bytes"
	"fmt"

	"github.com/iwvelando/portfolio-evaluator/internal/model"
	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodePortfolios serializes a population.
func EncodePortfolios(portfolios []model.Portfolio) ([]byte, error) {
	data, err := msgpack.Marshal(portfolios)
	if err != nil {
		return nil, fmt.Errorf("failed to encode portfolios: %w", err)
	}
	return data, nil
}

// DecodePortfolios parses a blob produced by EncodePortfolios. Empty input,
// malformed input and trailing bytes are reported as ErrDecode.
func DecodePortfolios(data []byte) ([]model.Portfolio, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty portfolio blob", validation.ErrDecode)
	}

	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)

	var portfolios []model.Portfolio
	if err := dec.Decode(&portfolios); err != nil {
		return nil, fmt.Errorf("%w: portfolio blob: %v", validation.ErrDecode, err)
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after portfolio blob", validation.ErrDecode, r.Len())
	}
	return portfolios, nil
}
