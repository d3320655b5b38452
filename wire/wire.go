// Package wire implements the binary codec shared by the coordinator and its
// clients. Every control-plane message is a length-delimited, gob-encoded
// envelope; bulk transfer payloads between clients skip the envelope
// entirely and are gob-encoded directly onto the transfer connection.
//
// gob is used instead of a hand-rolled format because it is the codec the
// reference compute example this package grew out of (registry/pi) reaches
// for when it needs to move a strongly typed Go value across a byte
// stream. A fresh gob.Encoder/gob.Decoder pair is created per frame: reusing
// one across frames would let gob elide type information after the first
// occurrence of a type, which breaks decoding for a peer that only sees a
// later frame.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameSize bounds a single control-plane frame so a corrupt or hostile
// length prefix cannot make ReadFrame allocate unbounded memory.
const maxFrameSize = 64 << 20

// WriteFrame gob-encodes v and writes it to w as a 4-byte big-endian length
// prefix followed by the encoded bytes.
func WriteFrame(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and gob-decodes it into v,
// which must be a pointer.
func ReadFrame(r io.Reader, v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameSize {
		return fmt.Errorf("wire: frame length %d exceeds maximum %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("wire: read frame payload: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}

// EncodeValue gob-encodes a bulk transfer payload directly onto w, with no
// length framing: the receiving side reads until its gob.Decoder has enough
// bytes for the target type, mirroring the "raw stream, not wrapped in a
// packet" bulk-transfer rule.
func EncodeValue[T any](w io.Writer, v T) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("wire: encode value: %w", err)
	}
	return nil
}

// DecodeValue gob-decodes a bulk transfer payload directly from r.
func DecodeValue[T any](r io.Reader) (T, error) {
	var v T
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return v, fmt.Errorf("wire: decode value: %w", err)
	}
	return v, nil
}
