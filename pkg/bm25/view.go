package bm25

import (
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/ranker"
)

// View is a read-only handle on one index snapshot.
type View struct {
	engine *Engine
	snap   *index.Snapshot
}

// Fingerprint identifies the content of the viewed index.
func (v *View) Fingerprint() string {
	return v.snap.Fingerprint()
}

// Terms returns the distinct query terms, in query order, as the viewed
// index would tokenize them.
func (v *View) Terms(query string) []string {
	analyzer := tokenizer.NewAnalyzer(v.engine.segmenter, v.snap.Lowercase())
	return ranker.Distinct(analyzer.Terms(query))
}

func (v *View) Search(query string, topK int) []Result {
	if topK <= 0 {
		return []Result{}
	}
	terms := v.Terms(query)
	if len(terms) == 0 {
		v.observeQuery("empty_query", 0)
		return []Result{}
	}

	ranked := ranker.Rank(v.snap, terms, topK)
	ids := v.snap.IDs()
	results := make([]Result, len(ranked))
	for i, d := range ranked {
		results[i] = Result{ID: ids.ID(d.Slot), Score: d.Score}
	}

	if len(results) == 0 {
		v.observeQuery("zero_result", 0)
	} else {
		v.observeQuery("hit", len(results))
	}
	v.engine.logger.Debug("search",
		"terms", len(terms),
		"top_k", topK,
		"results", len(results),
	)
	return results
}

func (v *View) Scores(query string) []float64 {
	return ranker.Scores(v.snap, v.Terms(query))
}

func (v *View) Stats() Stats {
	p := v.snap.Params()
	return Stats{
		Documents:   v.snap.DocCount(),
		Terms:       v.snap.TermCount(),
		AvgDocLen:   v.snap.AvgDocLen(),
		Params:      Params{K1: p.K1, B: p.B, Lowercase: v.snap.Lowercase()},
		Segmenter:   v.snap.SegmenterName(),
		Fingerprint: v.snap.Fingerprint(),
	}
}

// IDs returns the document identifiers in build order, parallel to the
// slice returned by Scores.
func (v *View) IDs() []ID {
	return v.snap.IDs().IDs()
}

// Lookup returns the slot of the first document carrying id.
func (v *View) Lookup(id ID) (int, bool) {
	slot, ok := v.snap.IDs().Slot(id)
	return int(slot), ok
}

func (v *View) observeQuery(resultType string, n int) {
	m := v.engine.metrics
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchResultsCount.Observe(float64(n))
}
