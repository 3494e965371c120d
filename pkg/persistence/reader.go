package persistence

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Reader replays a journal stream frame by frame.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps the journal stream for replay.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next journal command. It returns io.EOF at a clean
// end of the journal, ErrIncompleteFrame for a truncated tail (which a
// replayer may treat as a clean stop after a crash mid-append), and
// ErrChecksumMismatch or ErrInvalidMagic for corruption.
func (r *Reader) Next() (*Command, error) {
	payload, _, err := ReadFrame(r.r)
	if err != nil {
		return nil, err
	}
	cmd, err := ParseCommand(bufio.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return nil, fmt.Errorf("malformed record inside valid frame: %w", err)
	}
	return cmd, nil
}
