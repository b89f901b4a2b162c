// Package storage opens log files for line-oriented reading, transparently
// decompressing rotated files by extension.
package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Open returns a plain-text stream of the log file at path. Files ending in
// .zst or .gz are decompressed on the fly; everything else is read as-is.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &decodeCloser{r: dec.IOReadCloser(), f: f}, nil
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &decodeCloser{r: gz, f: f}, nil
	default:
		return f, nil
	}
}

// decodeCloser closes both the decoder and the underlying file.
type decodeCloser struct {
	r io.ReadCloser
	f *os.File
}

func (dc *decodeCloser) Read(p []byte) (int, error) {
	return dc.r.Read(p)
}

func (dc *decodeCloser) Close() error {
	derr := dc.r.Close()
	ferr := dc.f.Close()
	if derr != nil {
		return derr
	}
	return ferr
}
