package wire_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torosent/pacebench/internal/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	msgs := []wire.Message{
		wire.Stream(0, nil),
		wire.Stream(999_999, payload),
		wire.Terminate(),
		wire.EchoRequest(wire.TagUDP, 1000),
		wire.EchoResponse(wire.MaxIndex),
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		require.NoError(t, wire.WriteFrame(&buf, m))
	}

	r := bufio.NewReader(&buf)
	for _, want := range msgs {
		got, err := wire.ReadFrame(r)
		require.NoError(t, err)
		require.Equal(t, want.Kind, got.Kind)
		require.Equal(t, want.Tag, got.Tag)
		require.Equal(t, want.Index, got.Index)
		require.Equal(t, len(want.Payload), len(got.Payload))
	}

	_, err := wire.ReadFrame(r)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.WriteFrame(&buf, wire.Stream(7, make([]byte, 32))))
	short := buf.Bytes()[:buf.Len()-5]

	_, err := wire.ReadFrame(bufio.NewReader(bytes.NewReader(short)))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := wire.Unmarshal([]byte{0x7f, 0x01})
	require.True(t, errors.Is(err, wire.ErrUnknownKind))

	_, err = wire.Unmarshal(nil)
	require.ErrorIs(t, err, wire.ErrTruncated)

	_, err = wire.Unmarshal([]byte{byte(wire.KindEchoRequest)})
	require.ErrorIs(t, err, wire.ErrTruncated)
}

func TestMarshalRejectsOversizedIndex(t *testing.T) {
	_, err := wire.Marshal(wire.Stream(wire.MaxIndex+1, nil))
	require.Error(t, err)
}

func TestMarshalRejectsOversizedFrame(t *testing.T) {
	_, err := wire.Marshal(wire.Stream(1, make([]byte, wire.MaxFrameSize)))
	require.ErrorIs(t, err, wire.ErrFrameTooLarge)
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		in   string
		want wire.Tag
	}{
		{"tcp", wire.TagTCP},
		{"UDP", wire.TagUDP},
		{"websocket", wire.TagWebSocket},
		{"ws", wire.TagWebSocket},
		{" quic ", wire.TagQUIC},
	}
	for _, tt := range tests {
		got, err := wire.ParseTag(tt.in)
		if err != nil {
			t.Fatalf("ParseTag(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseTag(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if got.String() == "" {
			t.Errorf("Tag %d has empty name", got)
		}
	}
	if _, err := wire.ParseTag("sctp"); err == nil {
		t.Error("ParseTag(sctp) expected error")
	}
}
