package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single envelope.
const MaxFrameSize = 64 << 10

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// AppendFrame appends payload to dst behind a uvarint length prefix.
func AppendFrame(dst, payload []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(payload)))
	return append(dst, payload...)
}

func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame: %w (%d bytes)", ErrFrameTooLarge, len(payload))
	}
	_, err := w.Write(AppendFrame(nil, payload))
	return err
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// ReadFrame reads one length-prefixed payload from a stream.
func ReadFrame(r byteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DecodeError{Field: "frame.length", Err: err}
	}
	if n > MaxFrameSize {
		return nil, &DecodeError{Field: "frame.length", Err: fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, n)}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &DecodeError{Field: "frame.body", Err: err}
	}
	return buf, nil
}

// Unframe extracts the single payload of a datagram-style message such as a
// websocket binary message. Trailing bytes are an error.
func Unframe(b []byte) ([]byte, error) {
	n, k := protowire.ConsumeVarint(b)
	if k < 0 {
		return nil, &DecodeError{Field: "frame.length", Err: protowire.ParseError(k)}
	}
	if n > MaxFrameSize {
		return nil, &DecodeError{Field: "frame.length", Err: fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, n)}
	}
	body := b[k:]
	if uint64(len(body)) != n {
		return nil, malformed("frame.body", "length prefix %d, got %d bytes", n, len(body))
	}
	return body, nil
}
