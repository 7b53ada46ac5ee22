// Package tokenizer turns raw text into the ordered term sequence that the
// index and the ranker operate on. Segmentation is pluggable through the
// Segmenter interface; Analyzer layers optional ASCII case folding on top
// of any Segmenter.
package tokenizer

import "fmt"

// Segmenter splits text into an ordered sequence of terms. Implementations
// must be deterministic and safe for concurrent use.
type Segmenter interface {
	Segment(text string) []string
}

// Named is implemented by segmenters that can identify themselves. The name
// is recorded in persisted indexes so a mismatch can be reported on load.
type Named interface {
	Name() string
}

// CustomName is recorded for segmenters that do not implement Named.
const CustomName = "custom"

// NameOf returns the segmenter's name, or CustomName when it has none.
func NameOf(s Segmenter) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return CustomName
}

// ForName rebuilds one of this package's segmenters from the name it
// records. Unknown and custom names fail.
func ForName(name string) (Segmenter, error) {
	switch name {
	case Simple{}.Name():
		return Simple{}, nil
	case mixedName:
		return NewMixed()
	case mixedName + nfkcSuffix:
		return NewMixed(WithWidthFolding())
	default:
		return nil, fmt.Errorf("no built-in segmenter named %q", name)
	}
}

// Analyzer applies the lowercase policy of an index before segmenting.
type Analyzer struct {
	seg       Segmenter
	lowercase bool
}

func NewAnalyzer(seg Segmenter, lowercase bool) *Analyzer {
	return &Analyzer{seg: seg, lowercase: lowercase}
}

// Terms folds ASCII letters when lowercase is enabled and segments the
// result. Empty input yields an empty, non-nil slice.
func (a *Analyzer) Terms(text string) []string {
	if text == "" {
		return []string{}
	}
	if a.lowercase {
		text = FoldASCII(text)
	}
	terms := a.seg.Segment(text)
	if terms == nil {
		return []string{}
	}
	return terms
}

func (a *Analyzer) Lowercase() bool {
	return a.lowercase
}

func (a *Analyzer) Segmenter() Segmenter {
	return a.seg
}

// FoldASCII lower-cases A-Z and leaves every other rune untouched. Unlike
// strings.ToLower it never changes the byte length or non-ASCII letters.
func FoldASCII(s string) string {
	upper := -1
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			upper = i
			break
		}
	}
	if upper < 0 {
		return s
	}
	b := []byte(s)
	for i := upper; i < len(b); i++ {
		if c := b[i]; c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
