// Package corpus reads documents and their identifiers for indexing from
// JSON Lines files, plain text files and PostgreSQL.
package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Format names an input file layout.
type Format string

const (
	// FormatJSONL is one {"id": ..., "text": ...} object per line. The id
	// may be an integer or a string; when no record has one, documents are
	// identified by position.
	FormatJSONL Format = "jsonl"
	// FormatText is one document per line, identified by position.
	FormatText Format = "text"
	// FormatAuto picks JSONL for .jsonl and .ndjson files, text otherwise.
	FormatAuto Format = "auto"
)

const maxLineBytes = 64 << 20

// Corpus is a document list ready for bm25.Engine.Build. IDs is nil when
// documents are identified by position.
type Corpus struct {
	Docs []string
	IDs  []bm25.ID
}

func (c *Corpus) Len() int {
	return len(c.Docs)
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSONL, FormatText, FormatAuto:
		return f, nil
	case "ndjson":
		return FormatJSONL, nil
	case "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown corpus format %q", apperrors.ErrInvalidInput, s)
	}
}

// ReadFile loads a corpus from path in the given format.
func ReadFile(path string, format Format) (*Corpus, error) {
	if format == FormatAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			format = FormatJSONL
		default:
			format = FormatText
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSONL:
		return ReadJSONL(f)
	case FormatText:
		return ReadLines(f)
	default:
		return nil, fmt.Errorf("%w: unknown corpus format %q", apperrors.ErrInvalidInput, format)
	}
}

type record struct {
	ID   *bm25.ID `json:"id"`
	Text *string  `json:"text"`
}

// ReadJSONL parses one record per line, skipping blank lines. Either every
// record carries an id or none does.
func ReadJSONL(r io.Reader) (*Corpus, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	c := &Corpus{}
	var withID, withoutID int
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		if rec.Text == nil {
			return nil, fmt.Errorf("%w: line %d: missing \"text\"", apperrors.ErrInvalidInput, line)
		}
		c.Docs = append(c.Docs, *rec.Text)
		if rec.ID != nil {
			withID++
			c.IDs = append(c.IDs, *rec.ID)
		} else {
			withoutID++
		}
		if withID > 0 && withoutID > 0 {
			return nil, fmt.Errorf("%w: line %d: records must all have an id or all omit it", apperrors.ErrInvalidInput, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return c, nil
}

// ReadLines treats every line, blank ones included, as a document.
func ReadLines(r io.Reader) (*Corpus, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	c := &Corpus{}
	for sc.Scan() {
		c.Docs = append(c.Docs, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return c, nil
}
