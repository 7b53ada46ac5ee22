package bm25

import (
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
)

// DefaultTopK is the result count used when a caller has no preference.
const DefaultTopK = 10

// ID is an external document identifier: a signed integer or a string.
type ID = docid.ID

// Identifier constructors.
var (
	IntID   = docid.Int
	TextID  = docid.Text
	IntIDs  = docid.Ints
	TextIDs = docid.Texts
)

// Params are the BM25 tuning parameters and the case-folding policy.
type Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
	// Lowercase folds ASCII letters of documents and queries before
	// segmentation.
	Lowercase bool `json:"lowercase"`
}

// DefaultParams returns k1 = 1.5, b = 0.75 and no case folding.
func DefaultParams() Params {
	return Params{K1: index.DefaultK1, B: index.DefaultB}
}

// Validate requires a finite k1 > 0 and 0 <= b <= 1.
func (p Params) Validate() error {
	return p.index().Validate()
}

func (p Params) index() index.Params {
	return index.Params{K1: p.K1, B: p.B}
}

// Result is one ranked document.
type Result struct {
	ID    ID      `json:"id"`
	Score float64 `json:"score"`
}

// Stats describes the active index.
type Stats struct {
	Documents   int     `json:"documents"`
	Terms       int     `json:"terms"`
	AvgDocLen   float64 `json:"avg_doc_len"`
	Params      Params  `json:"params"`
	Segmenter   string  `json:"segmenter"`
	Fingerprint string  `json:"fingerprint"`
}
