package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the journal's binary framing. Every record is wrapped in
// a checksummed frame so replay can distinguish a cleanly truncated tail
// (crash mid-append) from actual corruption.
const (
	// MagicByte marks the start of a valid frame and lets recovery
	// re-synchronize a damaged stream.
	MagicByte = 0xA5

	// HeaderSize is the fixed frame metadata size:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32).
	HeaderSize = 10

	// OpCodeMutation is the opcode of a graph mutation record.
	OpCodeMutation = 0x01
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization or the
	// file is not a journal.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates corruption within a frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended mid-frame, e.g. after
	// a power loss during an append.
	ErrIncompleteFrame = errors.New("incomplete frame")
)

// FrameWriter writes checksummed binary frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps an underlying io.Writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a frame and writes it.
// Frame format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	header[1] = OpCodeMutation
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	// When fw.w is a bufio.Writer these two writes coalesce into one
	// syscall, keeping the append atomic in practice.
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// ReadFrame reads and validates the next frame, returning the payload
// and the total bytes consumed. A clean EOF at a frame boundary returns
// io.EOF; a partial header or payload returns ErrIncompleteFrame.
func ReadFrame(r io.Reader) ([]byte, int, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return nil, HeaderSize, ErrInvalidMagic
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, HeaderSize, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return nil, HeaderSize + int(length), ErrChecksumMismatch
	}
	return payload, HeaderSize + int(length), nil
}
