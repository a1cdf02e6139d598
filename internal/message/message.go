package message

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"hlcrelay/internal/clock"
)

// ErrMalformed is returned when an encoded envelope cannot be decoded.
var ErrMalformed = errors.New("malformed message")

// Field numbers of the encoded envelope.
const (
	fieldID       protowire.Number = 1
	fieldSender   protowire.Number = 2
	fieldTarget   protowire.Number = 3
	fieldPhysical protowire.Number = 4
	fieldLogical  protowire.Number = 5
)

// Message is a timestamped message from one node to another.
type Message struct {
	ID        string          `yaml:"id"`
	Sender    string          `yaml:"sender"`
	Target    string          `yaml:"target"`
	Timestamp clock.Timestamp `yaml:"timestamp"`
}

// New creates a message with a fresh random ID.
func New(sender, target string, ts clock.Timestamp) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Target:    target,
		Timestamp: ts,
	}
}

// String returns a short human-readable form of the message.
func (m Message) String() string {
	return fmt.Sprintf("%s->%s %s", m.Sender, m.Target, m.Timestamp)
}

// Marshal encodes m in protobuf wire format.
func Marshal(m Message) []byte {
	var b []byte
	b = appendString(b, fieldID, m.ID)
	b = appendString(b, fieldSender, m.Sender)
	b = appendString(b, fieldTarget, m.Target)
	if m.Timestamp.Physical != 0 {
		b = protowire.AppendTag(b, fieldPhysical, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Timestamp.Physical)
	}
	if m.Timestamp.Logical != 0 {
		b = protowire.AppendTag(b, fieldLogical, protowire.VarintType)
		b = protowire.AppendVarint(b, m.Timestamp.Logical)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes an envelope produced by Marshal. Unknown fields are
// skipped.
func Unmarshal(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldID || num == fieldSender || num == fieldTarget):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			switch num {
			case fieldID:
				m.ID = v
			case fieldSender:
				m.Sender = v
			case fieldTarget:
				m.Target = v
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldPhysical || num == fieldLogical):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			if num == fieldPhysical {
				m.Timestamp.Physical = v
			} else {
				m.Timestamp.Logical = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}
