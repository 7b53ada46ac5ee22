package index

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the BM25 tuning parameters an index was built with.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Validate requires a finite k1 > 0 and 0 <= b <= 1.
func (p Params) Validate() error {
	if math.IsNaN(p.K1) || math.IsInf(p.K1, 0) || p.K1 <= 0 {
		return fmt.Errorf("%w: k1 must be a positive finite number, got %v", apperrors.ErrInvalidParams, p.K1)
	}
	if math.IsNaN(p.B) || p.B < 0 || p.B > 1 {
		return fmt.Errorf("%w: b must be within [0, 1], got %v", apperrors.ErrInvalidParams, p.B)
	}
	return nil
}

// PostingList holds, for one term, the slots of every document containing
// it and the term frequency in each. Slots are strictly ascending and the
// two slices always have the same length.
type PostingList struct {
	Slots []uint32
	Freqs []uint32
}

// DocFreq is the number of documents containing the term.
func (p PostingList) DocFreq() int {
	return len(p.Slots)
}

// TermPostings pairs a term with its postings.
type TermPostings struct {
	Term     string
	Postings PostingList
}
