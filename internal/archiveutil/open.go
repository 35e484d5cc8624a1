package archiveutil

import (
	"archive/zip"
	"bytes"
	"io"
)

// ReadZip buffers r fully and opens it as a zip.Reader. The compile
// pipeline's uploads are bounded by uploadguard before reaching here,
// so buffering the whole archive in memory is safe.
func ReadZip(r io.Reader) (*zip.Reader, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, err
	}
	return zr, int64(len(data)), nil
}
