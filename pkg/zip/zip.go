package zip

import (
	"archive/zip"
	"bytes"
)

// Entry is one file to place in the archive.
type Entry struct {
	Filename string
	Data     []byte
}

// Archive builds an in-memory zip from the entries; entries without data are
// skipped.
func Archive(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		if len(entry.Data) == 0 {
			continue
		}
		w, err := zw.Create(entry.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
