package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"
)

// Entry is one file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Archives carry a fixed modification time so the same entries always
// produce the same bytes.
var archiveEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Archive builds a zip archive from entries in the given order. Entry order,
// names, and the fixed timestamp fully determine the output, keeping exports
// byte-for-byte reproducible.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		hdr := &zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: archiveEpoch,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("zip: create entry %q: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write entry %q: %w", entry.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
