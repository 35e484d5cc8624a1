package archiveutil

import (
	"compress/flate"
	"io"
)

func flateWriter(w io.Writer, level int) (io.WriteCloser, error) {
	return flate.NewWriter(w, level)
}
