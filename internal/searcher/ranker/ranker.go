// Package ranker scores documents of an index snapshot against query terms
// with BM25 and orders them.
//
// The inverse document frequency carries a +1 inside the logarithm,
//
//	idf(t) = ln((N - df + 0.5) / (df + 0.5) + 1)
//
// which keeps every idf non-negative, including terms present in every
// document. Reference formulations without the +1 produce different absolute
// scores but the same ranking.
package ranker

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
)

// ScoredDoc is a document slot with its BM25 score.
type ScoredDoc struct {
	Slot  uint32
	Score float64
}

// Scorer computes per-term BM25 contributions for one snapshot.
type Scorer struct {
	k1        float64
	b         float64
	docCount  int
	avgDocLen float64
}

func NewScorer(snap *index.Snapshot) Scorer {
	p := snap.Params()
	return Scorer{
		k1:        p.K1,
		b:         p.B,
		docCount:  snap.DocCount(),
		avgDocLen: snap.AvgDocLen(),
	}
}

func (s Scorer) IDF(docFreq int) float64 {
	numerator := float64(s.docCount) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// Contribution is the score one term adds to one document. It is 0 for an
// empty corpus or one whose documents are all empty.
func (s Scorer) Contribution(idf float64, termFreq, docLen uint32) float64 {
	if s.docCount == 0 || s.avgDocLen == 0 || termFreq == 0 {
		return 0
	}
	tf := float64(termFreq)
	lengthRatio := float64(docLen) / s.avgDocLen
	// Explicit conversions round each product, so the compiler cannot fuse
	// them differently at different call sites.
	norm := float64(s.k1 * (1 - s.b + float64(s.b*lengthRatio)))
	return idf * (tf * (s.k1 + 1)) / (tf + norm)
}

// Distinct removes repeated terms, keeping first occurrences in order.
func Distinct(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Scores returns one score per document in slot order. terms must already be
// distinct.
func Scores(snap *index.Snapshot, terms []string) []float64 {
	scores := make([]float64, snap.DocCount())
	scorer := NewScorer(snap)
	for _, term := range terms {
		p, ok := snap.Postings(term)
		if !ok {
			continue
		}
		idf := scorer.IDF(p.DocFreq())
		for i, slot := range p.Slots {
			scores[slot] += scorer.Contribution(idf, p.Freqs[i], snap.DocLen(slot))
		}
	}
	return scores
}

// Rank scores only documents containing at least one of terms and returns
// the best limit of them, highest score first and lower slot first on ties.
// terms must already be distinct. Contributions are summed in the same order
// as Scores, so each returned score equals the corresponding Scores entry.
func Rank(snap *index.Snapshot, terms []string, limit int) []ScoredDoc {
	if limit <= 0 || snap.DocCount() == 0 {
		return []ScoredDoc{}
	}
	lists := make([]index.PostingList, 0, len(terms))
	candidates := roaring.New()
	for _, term := range terms {
		if p, ok := snap.Postings(term); ok {
			lists = append(lists, p)
			candidates.AddMany(p.Slots)
		}
	}
	if candidates.IsEmpty() {
		return []ScoredDoc{}
	}

	scorer := NewScorer(snap)
	acc := make(map[uint32]float64, candidates.GetCardinality())
	for _, p := range lists {
		idf := scorer.IDF(p.DocFreq())
		for i, slot := range p.Slots {
			acc[slot] += scorer.Contribution(idf, p.Freqs[i], snap.DocLen(slot))
		}
	}

	result := make([]ScoredDoc, 0, len(acc))
	it := candidates.Iterator()
	for it.HasNext() {
		slot := it.Next()
		if score := acc[slot]; score > 0 {
			result = append(result, ScoredDoc{Slot: slot, Score: score})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}
