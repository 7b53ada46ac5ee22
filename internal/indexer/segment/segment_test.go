package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

func buildSnapshot(t *testing.T, docs []string, ids []docid.ID) *index.Snapshot {
	t.Helper()
	snap, err := index.Build(docs, ids, index.BuildOptions{
		Params:   index.Params{K1: 1.2, B: 0.6},
		Analyzer: tokenizer.NewAnalyzer(tokenizer.Simple{}, true),
	})
	require.NoError(t, err)
	return snap
}

func TestSaveLoadRoundTrip(t *testing.T) {
	snap := buildSnapshot(t,
		[]string{"Alpha beta", "beta gamma gamma", "", "delta alpha"},
		[]docid.ID{docid.Int(-7), docid.Text("doc-b"), docid.Int(1 << 40), docid.Text("")},
	)
	path := filepath.Join(t.TempDir(), "nested", "corpus"+FileExt)

	written, err := Save(path, snap)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), written.DocCount)
	assert.Equal(t, uint32(4), written.TermCount)

	loaded, header, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, written, header)
	assert.Equal(t, snap.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t, snap.State(), loaded.State())
	assert.True(t, loaded.Lowercase())
	assert.Equal(t, index.Params{K1: 1.2, B: 0.6}, loaded.Params())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestSaveLoadEmptyIndex(t *testing.T) {
	snap := buildSnapshot(t, nil, nil)
	path := filepath.Join(t.TempDir(), "empty"+FileExt)
	_, err := Save(path, snap)
	require.NoError(t, err)

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.DocCount())
	assert.Equal(t, 0.0, loaded.AvgDocLen())
}

func TestEncodeIsDeterministic(t *testing.T) {
	docs := []string{"one two three", "two three four", "three four five"}
	a, _, err := Encode(buildSnapshot(t, docs, nil))
	require.NoError(t, err)
	b, _, err := Encode(buildSnapshot(t, docs, nil))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, []byte("BM25"), a[:4])
}

func TestSaveOverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx"+FileExt)
	_, err := Save(path, buildSnapshot(t, []string{"old"}, nil))
	require.NoError(t, err)
	_, err = Save(path, buildSnapshot(t, []string{"new", "newer"}, nil))
	require.NoError(t, err)

	loaded, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.DocCount())
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing"+FileExt))
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeRejectsDamage(t *testing.T) {
	image, _, err := Encode(buildSnapshot(t, []string{"alpha beta", "gamma"}, nil))
	require.NoError(t, err)

	// reseal recomputes the checksum so damage past the header reaches the
	// body decoder.
	reseal := func(b []byte) []byte {
		sum := blake3.Sum256(b[HeaderSize:])
		copy(b[32:64], sum[:])
		return b
	}

	tests := []struct {
		name   string
		damage func(b []byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"short header", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-3] }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"future version", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:8], FormatVersion+1)
			return b
		}},
		{"flipped payload bit", func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b }},
		{"wrong doc count", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:12], 3)
			return b
		}},
		{"wrong term count", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:16], 9)
			return b
		}},
		{"wrong raw length", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[24:32], 1)
			return b
		}},
		{"raw length over limit", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[24:32], MaxRawLen+1)
			return b
		}},
		{"garbage body", func(b []byte) []byte {
			garbage := zstdEncoder.EncodeAll([]byte{0xff, 0x00, 0x13}, nil)
			out := append(b[:HeaderSize:HeaderSize], garbage...)
			binary.LittleEndian.PutUint64(out[16:24], uint64(len(garbage)))
			binary.LittleEndian.PutUint64(out[24:32], 3)
			return reseal(out)
		}},
		{"not zstd", func(b []byte) []byte {
			out := append(b[:HeaderSize:HeaderSize], []byte("plain bytes")...)
			binary.LittleEndian.PutUint64(out[16:24], 11)
			return reseal(out)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			damaged := tt.damage(append([]byte(nil), image...))
			snap, _, err := Decode(damaged)
			assert.ErrorIs(t, err, apperrors.ErrFormat)
			assert.Nil(t, snap)
		})
	}
}

func TestCheckFrameBeforeDecompressing(t *testing.T) {
	payload := zstdEncoder.EncodeAll(make([]byte, 1<<20), nil)
	require.NoError(t, checkFrame(payload, 1<<20))

	err := checkFrame(payload, 16)
	assert.ErrorIs(t, err, apperrors.ErrFormat)
	assert.ErrorContains(t, err, "compressed frame holds 1048576 bytes")

	err = checkFrame(payload, MaxRawLen+1)
	assert.ErrorContains(t, err, "exceeds")

	assert.ErrorIs(t, checkFrame([]byte("plain"), 5), apperrors.ErrFormat)
}

func TestDecodeRejectsInconsistentBody(t *testing.T) {
	snap := buildSnapshot(t, []string{"alpha beta", "beta"}, nil)
	st := snap.State()

	encodeBody := func(body fileBody) []byte {
		raw, err := encMode.Marshal(body)
		require.NoError(t, err)
		payload := zstdEncoder.EncodeAll(raw, nil)
		h := Header{
			Magic:      MagicBytes,
			Version:    FormatVersion,
			DocCount:   uint32(body.DocCount),
			TermCount:  uint32(len(body.Terms)),
			PayloadLen: uint64(len(payload)),
			RawLen:     uint64(len(raw)),
			Checksum:   blake3.Sum256(payload),
		}
		return append(h.encode(), payload...)
	}
	valid := func() fileBody {
		body := fileBody{
			K1:        st.Params.K1,
			B:         st.Params.B,
			DocCount:  uint64(len(st.DocLens)),
			AvgDocLen: st.AvgDocLen,
			DocLens:   append([]uint32(nil), st.DocLens...),
			IDs:       st.IDs,
			Segmenter: st.Segmenter,
		}
		for _, tp := range st.Terms {
			body.Terms = append(body.Terms, termRecord{
				Term:    tp.Term,
				DocFreq: uint64(tp.Postings.DocFreq()),
				Slots:   append([]uint32(nil), tp.Postings.Slots...),
				Freqs:   append([]uint32(nil), tp.Postings.Freqs...),
			})
		}
		return body
	}

	_, _, err := Decode(encodeBody(valid()))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(b *fileBody)
	}{
		{"df disagrees with slots", func(b *fileBody) { b.Terms[0].DocFreq = 2 }},
		{"df exceeds corpus", func(b *fileBody) {
			b.Terms[1].Slots = []uint32{0, 1, 1}
			b.Terms[1].Freqs = []uint32{1, 1, 1}
			b.Terms[1].DocFreq = 3
		}},
		{"slot out of range", func(b *fileBody) { b.Terms[0].Slots[0] = 5 }},
		{"unsorted terms", func(b *fileBody) { b.Terms[0], b.Terms[1] = b.Terms[1], b.Terms[0] }},
		{"avgdl drift", func(b *fileBody) { b.AvgDocLen = 2 }},
		{"missing ids", func(b *fileBody) { b.IDs = b.IDs[:1] }},
		{"doc count disagrees", func(b *fileBody) { b.DocCount = 3 }},
		{"invalid k1", func(b *fileBody) { b.K1 = -1 }},
		{"invalid b", func(b *fileBody) { b.B = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(&body)
			snap, _, err := Decode(encodeBody(body))
			assert.ErrorIs(t, err, apperrors.ErrFormat)
			assert.Nil(t, snap)
		})
	}
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx"+FileExt)
	written, err := Save(path, buildSnapshot(t, []string{"a b", "c"}, nil))
	require.NoError(t, err)

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, written, h)

	short := filepath.Join(dir, "short"+FileExt)
	require.NoError(t, os.WriteFile(short, []byte("BM25"), 0o644))
	_, err = ReadHeader(short)
	assert.ErrorIs(t, err, apperrors.ErrFormat)

	_, err = ReadHeader(filepath.Join(dir, "none"))
	assert.ErrorIs(t, err, apperrors.ErrIO)
}
