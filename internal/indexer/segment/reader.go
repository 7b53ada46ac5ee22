package segment

import (
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Load reads and fully validates the index file at path. Filesystem
// failures wrap ErrIO; anything wrong with the content wraps ErrFormat. No
// snapshot is returned unless every check passes.
func Load(path string) (*index.Snapshot, Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, apperrors.IO("reading index file", err)
	}
	return Decode(data)
}

// Decode parses a complete file image produced by Encode.
func Decode(data []byte) (*index.Snapshot, Header, error) {
	header, err := decodeHeader(data)
	if err != nil {
		return nil, Header{}, err
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) != header.PayloadLen {
		return nil, Header{}, apperrors.Formatf("payload is %d bytes, header says %d", len(payload), header.PayloadLen)
	}
	if blake3.Sum256(payload) != header.Checksum {
		return nil, Header{}, apperrors.Formatf("checksum mismatch")
	}

	if err := checkFrame(payload, header.RawLen); err != nil {
		return nil, Header{}, err
	}
	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, Header{}, apperrors.Formatf("decompressing body: %v", err)
	}
	if uint64(len(raw)) != header.RawLen {
		return nil, Header{}, apperrors.Formatf("body is %d bytes, header says %d", len(raw), header.RawLen)
	}

	var body fileBody
	if err := decMode.Unmarshal(raw, &body); err != nil {
		return nil, Header{}, apperrors.Formatf("decoding body: %v", err)
	}
	st, err := body.state(header)
	if err != nil {
		return nil, Header{}, err
	}
	snap, err := index.Restore(st)
	if err != nil {
		return nil, Header{}, err
	}
	return snap, header, nil
}

// checkFrame compares the declared body size with the limit and with the
// size the zstd frame announces, before anything is decompressed.
func checkFrame(payload []byte, rawLen uint64) error {
	if rawLen > MaxRawLen {
		return apperrors.Formatf("body of %d bytes exceeds the %d byte limit", rawLen, MaxRawLen)
	}
	var frame zstd.Header
	if err := frame.Decode(payload); err != nil {
		return apperrors.Formatf("reading compressed frame header: %v", err)
	}
	if frame.Skippable {
		return apperrors.Formatf("payload starts with a skippable frame")
	}
	if frame.HasFCS && frame.FrameContentSize != rawLen {
		return apperrors.Formatf("compressed frame holds %d bytes, header says %d", frame.FrameContentSize, rawLen)
	}
	return nil
}

// ReadHeader returns the header of the index file at path without reading
// the body.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, apperrors.IO("opening index file", err)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, apperrors.Formatf("truncated header")
		}
		return Header{}, apperrors.IO("reading index header", err)
	}
	return decodeHeader(buf)
}

// state cross-checks the body against the header and converts it for
// index.Restore, which checks the remaining structural invariants.
func (b fileBody) state(h Header) (index.State, error) {
	if b.DocCount != uint64(len(b.DocLens)) {
		return index.State{}, apperrors.Formatf("document count %d, %d lengths", b.DocCount, len(b.DocLens))
	}
	if b.DocCount != uint64(h.DocCount) {
		return index.State{}, apperrors.Formatf("body holds %d documents, header says %d", b.DocCount, h.DocCount)
	}
	if uint64(len(b.Terms)) != uint64(h.TermCount) {
		return index.State{}, apperrors.Formatf("body holds %d terms, header says %d", len(b.Terms), h.TermCount)
	}

	terms := make([]index.TermPostings, len(b.Terms))
	for i, rec := range b.Terms {
		if rec.DocFreq != uint64(len(rec.Slots)) {
			return index.State{}, apperrors.Formatf("term %q: document frequency %d, %d slots", rec.Term, rec.DocFreq, len(rec.Slots))
		}
		if i > 0 && rec.Term <= b.Terms[i-1].Term {
			return index.State{}, apperrors.Formatf("term records not sorted at %q", rec.Term)
		}
		terms[i] = index.TermPostings{
			Term:     rec.Term,
			Postings: index.PostingList{Slots: rec.Slots, Freqs: rec.Freqs},
		}
	}

	docLens := b.DocLens
	if docLens == nil {
		docLens = []uint32{}
	}
	ids := b.IDs
	if ids == nil {
		ids = []docid.ID{}
	}
	return index.State{
		Params:    index.Params{K1: b.K1, B: b.B},
		Lowercase: b.Lowercase,
		Segmenter: b.Segmenter,
		DocLens:   docLens,
		AvgDocLen: b.AvgDocLen,
		IDs:       ids,
		Terms:     terms,
	}, nil
}
