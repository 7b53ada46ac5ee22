package index

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Snapshot is an immutable corpus statistics index. It is produced whole by
// Build or Restore and never modified afterwards, so any number of readers
// may use it concurrently.
type Snapshot struct {
	params      Params
	lowercase   bool
	segmenter   string
	docLens     []uint32
	avgDocLen   float64
	postings    map[string]PostingList
	ids         *docid.Mapping
	fingerprint string
}

// State is the plain-data form of a Snapshot, used by the persistence codec.
// Terms are sorted by term.
type State struct {
	Params    Params
	Lowercase bool
	Segmenter string
	DocLens   []uint32
	AvgDocLen float64
	IDs       []docid.ID
	Terms     []TermPostings
}

func (s *Snapshot) Params() Params {
	return s.params
}

func (s *Snapshot) Lowercase() bool {
	return s.lowercase
}

// SegmenterName is the name of the segmenter the corpus was indexed with.
func (s *Snapshot) SegmenterName() string {
	return s.segmenter
}

// DocCount is N, the number of documents in the corpus.
func (s *Snapshot) DocCount() int {
	return len(s.docLens)
}

func (s *Snapshot) AvgDocLen() float64 {
	return s.avgDocLen
}

func (s *Snapshot) DocLen(slot uint32) uint32 {
	return s.docLens[slot]
}

// TermCount is the number of distinct terms in the corpus.
func (s *Snapshot) TermCount() int {
	return len(s.postings)
}

// Postings returns the posting list of term. The returned slices are shared
// with the snapshot and must not be modified.
func (s *Snapshot) Postings(term string) (PostingList, bool) {
	p, ok := s.postings[term]
	return p, ok
}

func (s *Snapshot) IDs() *docid.Mapping {
	return s.ids
}

// Fingerprint identifies the snapshot's content. Two snapshots with equal
// fingerprints rank every query identically.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}

// State exports the snapshot. Slices are shared, not copied.
func (s *Snapshot) State() State {
	return State{
		Params:    s.params,
		Lowercase: s.lowercase,
		Segmenter: s.segmenter,
		DocLens:   s.docLens,
		AvgDocLen: s.avgDocLen,
		IDs:       s.ids.IDs(),
		Terms:     s.sortedTerms(),
	}
}

func (s *Snapshot) sortedTerms() []TermPostings {
	terms := make([]TermPostings, 0, len(s.postings))
	for term, p := range s.postings {
		terms = append(terms, TermPostings{Term: term, Postings: p})
	}
	sort.Slice(terms, func(i, j int) bool {
		return terms[i].Term < terms[j].Term
	})
	return terms
}

// Restore rebuilds a snapshot from persisted state after checking every
// structural invariant. Any violation is reported as a format error and no
// snapshot is returned.
func Restore(st State) (*Snapshot, error) {
	if err := st.Params.Validate(); err != nil {
		return nil, apperrors.Formatf("stored parameters: %v", err)
	}
	n := len(st.DocLens)
	if uint64(n) > math.MaxUint32 {
		return nil, apperrors.Formatf("document count %d exceeds slot range", n)
	}
	if len(st.IDs) != n {
		return nil, apperrors.Formatf("%d ids for %d documents", len(st.IDs), n)
	}
	if avg := meanLength(st.DocLens); avg != st.AvgDocLen {
		return nil, apperrors.Formatf("average document length %v does not match document lengths (%v)", st.AvgDocLen, avg)
	}

	postings := make(map[string]PostingList, len(st.Terms))
	occurrences := make([]uint64, n)
	for _, tp := range st.Terms {
		if tp.Term == "" {
			return nil, apperrors.Formatf("empty term")
		}
		if _, dup := postings[tp.Term]; dup {
			return nil, apperrors.Formatf("duplicate term %q", tp.Term)
		}
		p := tp.Postings
		if len(p.Slots) == 0 || len(p.Slots) != len(p.Freqs) {
			return nil, apperrors.Formatf("term %q: %d slots, %d frequencies", tp.Term, len(p.Slots), len(p.Freqs))
		}
		if len(p.Slots) > n {
			return nil, apperrors.Formatf("term %q: document frequency %d exceeds corpus size %d", tp.Term, len(p.Slots), n)
		}
		for i, slot := range p.Slots {
			if int(slot) >= n {
				return nil, apperrors.Formatf("term %q: slot %d out of range", tp.Term, slot)
			}
			if i > 0 && slot <= p.Slots[i-1] {
				return nil, apperrors.Formatf("term %q: slots not strictly ascending", tp.Term)
			}
			if p.Freqs[i] == 0 {
				return nil, apperrors.Formatf("term %q: zero frequency for slot %d", tp.Term, slot)
			}
			occurrences[slot] += uint64(p.Freqs[i])
		}
		postings[tp.Term] = p
	}
	for slot, total := range occurrences {
		if total != uint64(st.DocLens[slot]) {
			return nil, apperrors.Formatf("slot %d: postings hold %d occurrences, length is %d", slot, total, st.DocLens[slot])
		}
	}
	return newSnapshot(st.Params, st.Lowercase, st.Segmenter, st.DocLens, postings, st.IDs), nil
}

func newSnapshot(params Params, lowercase bool, segmenter string, docLens []uint32, postings map[string]PostingList, ids []docid.ID) *Snapshot {
	s := &Snapshot{
		params:    params,
		lowercase: lowercase,
		segmenter: segmenter,
		docLens:   docLens,
		avgDocLen: meanLength(docLens),
		postings:  postings,
		ids:       docid.NewMapping(ids),
	}
	s.fingerprint = s.computeFingerprint()
	return s
}

// meanLength is 0 for an empty corpus.
func meanLength(lens []uint32) float64 {
	if len(lens) == 0 {
		return 0
	}
	var total uint64
	for _, l := range lens {
		total += uint64(l)
	}
	return float64(total) / float64(len(lens))
}

func (s *Snapshot) computeFingerprint() string {
	h := blake3.New()
	var buf [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putString := func(v string) {
		putU64(uint64(len(v)))
		h.Write([]byte(v))
	}

	putU64(math.Float64bits(s.params.K1))
	putU64(math.Float64bits(s.params.B))
	if s.lowercase {
		putU64(1)
	} else {
		putU64(0)
	}
	putString(s.segmenter)
	putU64(uint64(len(s.docLens)))
	for slot, l := range s.docLens {
		putU64(uint64(l))
		id := s.ids.ID(uint32(slot))
		putU64(uint64(id.Kind()))
		putString(id.String())
	}
	for _, tp := range s.sortedTerms() {
		putString(tp.Term)
		putU64(uint64(len(tp.Postings.Slots)))
		for i, slot := range tp.Postings.Slots {
			putU64(uint64(slot)<<32 | uint64(tp.Postings.Freqs[i]))
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
