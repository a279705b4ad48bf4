package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrNoSender    = errors.New("message without sender")
)

// Envelope is the wire frame: a type tag and the variant payload.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.Type(), err)
	}
	return json.Marshal(Envelope{Type: m.Type(), Data: data})
}

func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var (
		m   Message
		err error
	)
	switch env.Type {
	case TypeJoined:
		m, err = decodeAs[Joined](env.Data)
	case TypeOffer:
		m, err = decodeAs[Offer](env.Data)
	case TypeAnswer:
		m, err = decodeAs[Answer](env.Data)
	case TypeCandidate:
		m, err = decodeAs[IceCandidate](env.Data)
	case TypeLeft:
		m, err = decodeAs[Left](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	if m.Sender() == "" {
		return nil, ErrNoSender
	}
	return m, nil
}

// PeekSender reads only the sender of a frame, for relays that forward verbatim.
func PeekSender(frame []byte) (Type, domain.UserID, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	var hdr struct {
		From domain.UserID `json:"from"`
	}
	if err := json.Unmarshal(env.Data, &hdr); err != nil {
		return "", "", fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return env.Type, hdr.From, nil
}

func decodeAs[T Message](data []byte) (Message, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
