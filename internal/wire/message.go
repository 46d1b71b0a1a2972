// Package wire defines the benchmark messages exchanged between the client and
// server roles and their binary encoding.
package wire

import (
	"fmt"
	"strings"
)

// Kind discriminates the message variants carried on a benchmark channel.
type Kind uint8

const (
	KindStream Kind = iota + 1
	KindTermination
	KindEchoRequest
	KindEchoResponse
)

func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindTermination:
		return "termination"
	case KindEchoRequest:
		return "echo-request"
	case KindEchoResponse:
		return "echo-response"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Tag names the transport an echo request travelled over.
type Tag uint8

const (
	TagTCP Tag = iota + 1
	TagUDP
	TagWebSocket
	TagQUIC
)

func (t Tag) String() string {
	switch t {
	case TagTCP:
		return "tcp"
	case TagUDP:
		return "udp"
	case TagWebSocket:
		return "ws"
	case TagQUIC:
		return "quic"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// ParseTag maps a URI scheme or protocol name to its Tag.
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return TagTCP, nil
	case "udp":
		return TagUDP, nil
	case "ws", "websocket":
		return TagWebSocket, nil
	case "quic":
		return TagQUIC, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// Message is a single benchmark message. Which fields are meaningful depends on Kind:
// Stream uses Index and Payload, EchoRequest uses Tag and Index, EchoResponse uses Index
// and Termination carries nothing.
type Message struct {
	Kind    Kind
	Tag     Tag
	Index   uint64
	Payload []byte
}

// Stream builds a sequence-numbered stream message.
func Stream(index uint64, payload []byte) Message {
	return Message{Kind: KindStream, Index: index, Payload: payload}
}

// Terminate builds the end-of-run signal.
func Terminate() Message {
	return Message{Kind: KindTermination}
}

// EchoRequest builds a round-trip request for index.
func EchoRequest(tag Tag, index uint64) Message {
	return Message{Kind: KindEchoRequest, Tag: tag, Index: index}
}

// EchoResponse builds the reply to an echo request.
func EchoResponse(index uint64) Message {
	return Message{Kind: KindEchoResponse, Index: index}
}

func (m Message) String() string {
	switch m.Kind {
	case KindStream:
		return fmt.Sprintf("stream{index=%d, payload=%dB}", m.Index, len(m.Payload))
	case KindTermination:
		return "termination"
	case KindEchoRequest:
		return fmt.Sprintf("echo-request{tag=%s, index=%d}", m.Tag, m.Index)
	case KindEchoResponse:
		return fmt.Sprintf("echo-response{index=%d}", m.Index)
	default:
		return m.Kind.String()
	}
}
