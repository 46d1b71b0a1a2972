package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// MaxFrameSize bounds a single encoded message.
const MaxFrameSize = 16 << 20

// MaxIndex is the largest index the varint codec can carry.
const MaxIndex = varint.MaxValueUvarint63

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	ErrUnknownKind   = errors.New("wire: unknown message kind")
	ErrTruncated     = errors.New("wire: truncated message")
)

// Append encodes m onto dst.
func Append(dst []byte, m Message) ([]byte, error) {
	switch m.Kind {
	case KindStream:
		if m.Index > MaxIndex {
			return dst, fmt.Errorf("wire: index %d out of range", m.Index)
		}
		dst = append(dst, byte(KindStream))
		dst = appendUvarint(dst, m.Index)
		dst = append(dst, m.Payload...)
	case KindTermination:
		dst = append(dst, byte(KindTermination))
	case KindEchoRequest:
		if m.Index > MaxIndex {
			return dst, fmt.Errorf("wire: index %d out of range", m.Index)
		}
		dst = append(dst, byte(KindEchoRequest), byte(m.Tag))
		dst = appendUvarint(dst, m.Index)
	case KindEchoResponse:
		if m.Index > MaxIndex {
			return dst, fmt.Errorf("wire: index %d out of range", m.Index)
		}
		dst = append(dst, byte(KindEchoResponse))
		dst = appendUvarint(dst, m.Index)
	default:
		return dst, fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
	if len(dst) > MaxFrameSize {
		return dst, ErrFrameTooLarge
	}
	return dst, nil
}

// Marshal encodes m into a new buffer.
func Marshal(m Message) ([]byte, error) {
	return Append(make([]byte, 0, 1+varint.MaxLenUvarint63+len(m.Payload)), m)
}

// Unmarshal decodes a single message. The returned payload aliases b.
func Unmarshal(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, ErrTruncated
	}
	kind := Kind(b[0])
	body := b[1:]

	switch kind {
	case KindStream:
		idx, n, err := varint.FromUvarint(body)
		if err != nil {
			return Message{}, fmt.Errorf("wire: stream index: %w", err)
		}
		return Stream(idx, body[n:]), nil
	case KindTermination:
		return Terminate(), nil
	case KindEchoRequest:
		if len(body) < 1 {
			return Message{}, ErrTruncated
		}
		tag := Tag(body[0])
		idx, _, err := varint.FromUvarint(body[1:])
		if err != nil {
			return Message{}, fmt.Errorf("wire: echo request index: %w", err)
		}
		return EchoRequest(tag, idx), nil
	case KindEchoResponse:
		idx, _, err := varint.FromUvarint(body)
		if err != nil {
			return Message{}, fmt.Errorf("wire: echo response index: %w", err)
		}
		return EchoResponse(idx), nil
	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// WriteFrame writes m to w prefixed with its uvarint length. The prefix and body go out
// in a single Write.
func WriteFrame(w io.Writer, m Message) error {
	body, err := Marshal(m)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, varint.UvarintSize(uint64(len(body)))+len(body))
	frame = appendUvarint(frame, uint64(len(body)))
	frame = append(frame, body...)
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed message from r.
func ReadFrame(r *bufio.Reader) (Message, error) {
	size, err := varint.ReadUvarint(r)
	if err != nil {
		return Message{}, err
	}
	if size > MaxFrameSize {
		return Message{}, ErrFrameTooLarge
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Unmarshal(buf)
}

func appendUvarint(dst []byte, x uint64) []byte {
	var tmp [varint.MaxLenUvarint63]byte
	n := varint.PutUvarint(tmp[:], x)
	return append(dst, tmp[:n]...)
}
