package logparse

import (
	"bytes"
	"io"
)

// CountLines counts newline-terminated lines in r by scanning 1 MiB chunks.
// A trailing line without a newline still counts. Used for the counting
// phase of an import, where only the total matters.
func CountLines(r io.Reader) (int64, error) {
	buf := make([]byte, 1<<20)
	var total int64
	var lastByte byte
	sawData := false

	for {
		n, err := r.Read(buf)
		if n > 0 {
			sawData = true
			total += int64(bytes.Count(buf[:n], []byte{'\n'}))
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if sawData && lastByte != '\n' {
		total++
	}
	return total, nil
}
