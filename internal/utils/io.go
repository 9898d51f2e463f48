package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// MaxStdinSize bounds ReadStdin. Push payloads are a few hundred bytes.
const MaxStdinSize = 64 << 10

// ReadStdin reads piped data from stdin, trimmed of surrounding whitespace.
// It fails when stdin is a terminal, when nothing was piped, or when the
// input exceeds MaxStdinSize.
func ReadStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no data provided on stdin (hint: pipe the push payload to this command)")
	}
	return readLimited(os.Stdin, MaxStdinSize)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("stdin is empty")
	}
	return data, nil
}
