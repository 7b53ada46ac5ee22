package index

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// BuildOptions control how a corpus is indexed.
type BuildOptions struct {
	Params   Params
	Analyzer *tokenizer.Analyzer
	// Workers bounds the number of documents segmented concurrently.
	// Zero or negative means GOMAXPROCS.
	Workers int
}

// Build indexes docs and returns a new snapshot. ids may be nil, in which
// case slot positions become the identifiers; otherwise it must have one
// entry per document. The result does not depend on Workers.
func Build(docs []string, ids []docid.ID, opts BuildOptions) (*Snapshot, error) {
	if ids != nil && len(ids) != len(docs) {
		return nil, fmt.Errorf("%w: %d documents, %d ids", apperrors.ErrLengthMismatch, len(docs), len(ids))
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer is required", apperrors.ErrInvalidInput)
	}
	if uint64(len(docs)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d documents exceed the slot range", apperrors.ErrInvalidInput, len(docs))
	}
	if ids == nil {
		ids = docid.Sequential(len(docs))
	}

	termFreqs, docLens := segmentAll(docs, opts.Analyzer, opts.Workers)

	postings := make(map[string]PostingList)
	for slot, freqs := range termFreqs {
		for term, freq := range freqs {
			p := postings[term]
			p.Slots = append(p.Slots, uint32(slot))
			p.Freqs = append(p.Freqs, freq)
			postings[term] = p
		}
	}

	segName := tokenizer.NameOf(opts.Analyzer.Segmenter())
	return newSnapshot(opts.Params, opts.Analyzer.Lowercase(), segName, docLens, postings, ids), nil
}

// segmentAll tokenizes every document into a per-document term frequency
// map. Each worker writes only its own slot.
func segmentAll(docs []string, analyzer *tokenizer.Analyzer, workers int) ([]map[string]uint32, []uint32) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	termFreqs := make([]map[string]uint32, len(docs))
	docLens := make([]uint32, len(docs))

	var g errgroup.Group
	g.SetLimit(workers)
	for slot, doc := range docs {
		g.Go(func() error {
			terms := analyzer.Terms(doc)
			freqs := make(map[string]uint32, len(terms))
			for _, term := range terms {
				freqs[term]++
			}
			termFreqs[slot] = freqs
			docLens[slot] = uint32(len(terms))
			return nil
		})
	}
	_ = g.Wait()
	return termFreqs, docLens
}
