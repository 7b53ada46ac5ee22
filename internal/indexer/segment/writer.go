package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

// Encode serialises a snapshot into the complete file image.
func Encode(snap *index.Snapshot) ([]byte, Header, error) {
	st := snap.State()
	body := fileBody{
		K1:        st.Params.K1,
		B:         st.Params.B,
		Lowercase: st.Lowercase,
		Segmenter: st.Segmenter,
		DocCount:  uint64(len(st.DocLens)),
		AvgDocLen: st.AvgDocLen,
		DocLens:   st.DocLens,
		IDs:       st.IDs,
		Terms:     make([]termRecord, len(st.Terms)),
	}
	for i, tp := range st.Terms {
		body.Terms[i] = termRecord{
			Term:    tp.Term,
			DocFreq: uint64(tp.Postings.DocFreq()),
			Slots:   tp.Postings.Slots,
			Freqs:   tp.Postings.Freqs,
		}
	}

	raw, err := encMode.Marshal(body)
	if err != nil {
		return nil, Header{}, fmt.Errorf("encoding index body: %w", err)
	}
	payload := zstdEncoder.EncodeAll(raw, nil)

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		DocCount:   uint32(len(st.DocLens)),
		TermCount:  uint32(len(st.Terms)),
		PayloadLen: uint64(len(payload)),
		RawLen:     uint64(len(raw)),
		Checksum:   blake3.Sum256(payload),
	}
	image := make([]byte, 0, HeaderSize+len(payload))
	image = append(image, header.encode()...)
	image = append(image, payload...)
	return image, header, nil
}

// Save atomically writes snap to path. The file is written under a
// temporary name in the same directory, synced, and renamed over path, so a
// reader never observes a partial file.
func Save(path string, snap *index.Snapshot) (Header, error) {
	image, header, err := Encode(snap)
	if err != nil {
		return Header{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Header{}, apperrors.IO("creating index directory", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return Header{}, apperrors.IO("creating temp index file", err)
	}
	tmpPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(image); err != nil {
		return Header{}, apperrors.IO("writing index file", err)
	}
	if err := f.Sync(); err != nil {
		return Header{}, apperrors.IO("syncing index file", err)
	}
	if err := f.Close(); err != nil {
		return Header{}, apperrors.IO("closing index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Header{}, apperrors.IO("renaming index file", err)
	}
	committed = true
	return header, nil
}
