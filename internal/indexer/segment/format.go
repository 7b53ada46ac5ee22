// Package segment persists index snapshots as single .bm25 files.
//
// A file is a 64-byte little-endian header followed by a zstd-compressed,
// deterministically encoded CBOR body:
//
//	offset size field
//	0      4    magic "BM25"
//	4      4    format version
//	8      4    document count
//	12     4    term count
//	16     8    payload length (compressed body)
//	24     8    raw length (CBOR body)
//	32     32   blake3-256 of the payload
package segment

import (
	"encoding/binary"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/docid"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

const (
	// MagicBytes is "BM25" read as a little-endian uint32.
	MagicBytes    uint32 = 0x35324D42
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	checksumSize  int    = 32

	// FileExt is the conventional extension of index files.
	FileExt = ".bm25"

	// MaxRawLen bounds the decompressed body a file may declare, and the
	// memory the decoder will spend on any one file.
	MaxRawLen uint64 = 4 << 30
)

// Header is the fixed-size prefix of every index file.
type Header struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	TermCount  uint32
	PayloadLen uint64
	RawLen     uint64
	Checksum   [32]byte
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.DocCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.TermCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.PayloadLen)
	binary.LittleEndian.PutUint64(buf[24:32], h.RawLen)
	copy(buf[32:32+checksumSize], h.Checksum[:])
	return buf
}

// decodeHeader parses and checks the fixed fields. It does not look at the
// payload.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, apperrors.Formatf("truncated header: %d bytes", len(buf))
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		DocCount:   binary.LittleEndian.Uint32(buf[8:12]),
		TermCount:  binary.LittleEndian.Uint32(buf[12:16]),
		PayloadLen: binary.LittleEndian.Uint64(buf[16:24]),
		RawLen:     binary.LittleEndian.Uint64(buf[24:32]),
	}
	copy(h.Checksum[:], buf[32:32+checksumSize])
	if h.Magic != MagicBytes {
		return Header{}, apperrors.Formatf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, apperrors.Formatf("unsupported format version %d (want %d)", h.Version, FormatVersion)
	}
	return h, nil
}

// fileBody is the CBOR-encoded content of an index file. Integer keys keep
// the encoding compact and stable across field renames.
type fileBody struct {
	K1        float64      `cbor:"1,keyasint"`
	B         float64      `cbor:"2,keyasint"`
	Lowercase bool         `cbor:"3,keyasint"`
	Segmenter string       `cbor:"4,keyasint"`
	DocCount  uint64       `cbor:"5,keyasint"`
	AvgDocLen float64      `cbor:"6,keyasint"`
	DocLens   []uint32     `cbor:"7,keyasint"`
	IDs       []docid.ID   `cbor:"8,keyasint"`
	Terms     []termRecord `cbor:"9,keyasint"`
}

type termRecord struct {
	_       struct{} `cbor:",toarray"`
	Term    string
	DocFreq uint64
	Slots   []uint32
	Freqs   []uint32
}

// Encoders and decoders are safe for concurrent use and reused across calls.
var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	// Core deterministic encoding: sorted keys, shortest lossless floats.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("segment: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("segment: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("segment: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxRawLen))
	if err != nil {
		panic("segment: zstd decoder initialization failed: " + err.Error())
	}
}
