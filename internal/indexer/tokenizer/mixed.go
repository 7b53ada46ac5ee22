package tokenizer

import (
	"fmt"
	"sync"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/go-ego/gse"
	"golang.org/x/text/unicode/norm"
)

const (
	mixedName  = "mixed/gse+uax29"
	nfkcSuffix = "+nfkc"
)

var (
	dictOnce sync.Once
	dictSeg  *gse.Segmenter
	dictErr  error
)

// loadDictionary loads the embedded simplified-Chinese dictionary once per
// process. Loading takes a noticeable fraction of a second, so every Mixed
// segmenter shares the result.
func loadDictionary() (*gse.Segmenter, error) {
	dictOnce.Do(func() {
		seg := &gse.Segmenter{SkipLog: true}
		if err := seg.LoadDictEmbed(); err != nil {
			dictErr = fmt.Errorf("loading segmentation dictionary: %w", err)
			return
		}
		dictSeg = seg
	})
	return dictSeg, dictErr
}

// Mixed segments mixed Chinese/Latin text. Runs of Han characters go
// through dictionary segmentation with HMM recognition of unknown words;
// everything else is split on Unicode word boundaries. Tokens containing no
// letter or digit are dropped.
type Mixed struct {
	dict      *gse.Segmenter
	foldWidth bool
}

type MixedOption func(*Mixed)

// WithWidthFolding applies NFKC normalization before segmenting, so that
// full-width forms such as "ＡＢＣ１２３" index the same as "ABC123".
func WithWidthFolding() MixedOption {
	return func(m *Mixed) {
		m.foldWidth = true
	}
}

func NewMixed(opts ...MixedOption) (*Mixed, error) {
	dict, err := loadDictionary()
	if err != nil {
		return nil, err
	}
	m := &Mixed{dict: dict}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Mixed) Name() string {
	if m.foldWidth {
		return mixedName + nfkcSuffix
	}
	return mixedName
}

func (m *Mixed) Segment(text string) []string {
	if m.foldWidth {
		text = norm.NFKC.String(text)
	}
	terms := make([]string, 0, len(text)/4+1)
	start := 0
	inHan := false
	for i, r := range text {
		han := unicode.Is(unicode.Han, r)
		if i == 0 {
			inHan = han
			continue
		}
		if han != inHan {
			terms = m.appendRun(terms, text[start:i], inHan)
			start = i
			inHan = han
		}
	}
	if start < len(text) {
		terms = m.appendRun(terms, text[start:], inHan)
	}
	return terms
}

func (m *Mixed) appendRun(terms []string, run string, han bool) []string {
	if han {
		for _, w := range m.dict.Cut(run, true) {
			if hasWordRune(w) {
				terms = append(terms, w)
			}
		}
		return terms
	}
	toks := words.FromString(run)
	for toks.Next() {
		if w := toks.Value(); hasWordRune(w) {
			terms = append(terms, w)
		}
	}
	return terms
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
