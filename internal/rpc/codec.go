package rpc

import (
	"fmt"

	"hlcrelay/internal/message"
)

const codecName = "hlcwire"

// ack is the empty Deliver response.
type ack struct{}

// codec marshals Relay service payloads.
type codec struct{}

func (codec) Name() string {
	return codecName
}

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *message.Message:
		return message.Marshal(*m), nil
	case *ack:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("%s codec: cannot marshal %T", codecName, v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *message.Message:
		decoded, err := message.Unmarshal(data)
		if err != nil {
			return err
		}
		*m = decoded
		return nil
	case *ack:
		return nil
	default:
		return fmt.Errorf("%s codec: cannot unmarshal into %T", codecName, v)
	}
}
