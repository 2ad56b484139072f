package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFrameLength is the recommended cap on a single frame's serialized
// CastMessage, guarding against a misbehaving peer sending an unbounded
// length prefix.
const MaxFrameLength = 65536

// ErrFrameTooLarge is returned by ReadFrame when the advertised length
// exceeds MaxFrameLength.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum length")

// ReadFrame reads one length-prefixed CastMessage from r: a 4-byte
// big-endian length N followed by exactly N bytes of serialized message.
// A short read at either stage surfaces as an end-of-stream error and the
// caller should treat the connection as dead.
func ReadFrame(r io.Reader) (*CastMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "read frame length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	msg := &CastMessage{}
	if err := msg.Unmarshal(body); err != nil {
		return nil, errors.Wrap(err, "decode cast message")
	}
	return msg, nil
}

// WriteFrame serializes msg and writes the length prefix and body with a
// single Write call. It takes no lock: callers sharing one io.Writer
// across goroutines serialize their WriteFrame calls themselves.
func WriteFrame(w io.Writer, msg *CastMessage) error {
	body, err := msg.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode cast message")
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}
