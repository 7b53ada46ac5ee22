// Package docid maps the internal zero-based document slots of an index to
// the identifiers callers supplied at build time. An identifier is either a
// signed integer or a text string.
package docid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Kind distinguishes integer identifiers from text identifiers.
type Kind uint8

const (
	KindInt Kind = iota
	KindText
)

// ID is an externally visible document identifier. The zero value is the
// integer 0. IDs are comparable and can be used as map keys; Int(1) and
// Text("1") are different identifiers.
type ID struct {
	kind Kind
	n    int64
	s    string
}

func Int(n int64) ID {
	return ID{kind: KindInt, n: n}
}

func Text(s string) ID {
	return ID{kind: KindText, s: s}
}

// Ints builds an identifier list from integers.
func Ints(ns ...int64) []ID {
	ids := make([]ID, len(ns))
	for i, n := range ns {
		ids[i] = Int(n)
	}
	return ids
}

// Texts builds an identifier list from strings.
func Texts(ss ...string) []ID {
	ids := make([]ID, len(ss))
	for i, s := range ss {
		ids[i] = Text(s)
	}
	return ids
}

// Sequential returns the default identifiers 0..n-1, one per slot.
func Sequential(n int) []ID {
	ids := make([]ID, n)
	for i := range ids {
		ids[i] = Int(int64(i))
	}
	return ids
}

func (id ID) Kind() Kind {
	return id.kind
}

func (id ID) Int() (int64, bool) {
	return id.n, id.kind == KindInt
}

func (id ID) Text() (string, bool) {
	return id.s, id.kind == KindText
}

func (id ID) String() string {
	if id.kind == KindText {
		return id.s
	}
	return strconv.FormatInt(id.n, 10)
}

// MarshalJSON writes integer IDs as JSON numbers and text IDs as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.kind == KindText {
		return json.Marshal(id.s)
	}
	return []byte(strconv.FormatInt(id.n, 10)), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding text id: %w", err)
		}
		*id = Text(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("decoding integer id %s: %w", data, err)
	}
	*id = Int(n)
	return nil
}

// MarshalCBOR writes the identifier as a bare CBOR integer or text string.
func (id ID) MarshalCBOR() ([]byte, error) {
	if id.kind == KindText {
		return cbor.Marshal(id.s)
	}
	return cbor.Marshal(id.n)
}

func (id *ID) UnmarshalCBOR(data []byte) error {
	var v any
	if err := cbor.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding id: %w", err)
	}
	switch t := v.(type) {
	case uint64:
		if t > math.MaxInt64 {
			return fmt.Errorf("integer id %d overflows int64", t)
		}
		*id = Int(int64(t))
	case int64:
		*id = Int(t)
	case string:
		*id = Text(t)
	default:
		return fmt.Errorf("unsupported id type %T", v)
	}
	return nil
}
