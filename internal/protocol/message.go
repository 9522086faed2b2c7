package protocol

import (
	"fmt"
	"io"

	"github.com/danmuck/scenebridge/internal/protocol/frame"
)

// Message is one instruction with an optional payload.
type Message struct {
	ID          uint64
	Instruction string
	Payload     []byte
	HasPayload  bool
	Reply       bool
}

// NewMessage builds a message for s. A nil payload means no payload frame.
func NewMessage(id uint64, s State, payload []byte) Message {
	return Message{
		ID:          id,
		Instruction: s.Token(),
		Payload:     payload,
		HasPayload:  payload != nil,
	}
}

// State classifies the message instruction.
func (m Message) State() State {
	return ClassifyString(m.Instruction)
}

// WriteOptions controls payload compression and frame limits.
type WriteOptions struct {
	Codec  frame.Codec
	Limits frame.Limits
}

func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Codec: frame.CodecBG4LZ4, Limits: frame.DefaultLimits()}
}

// WriteMessage writes the instruction frame and, when present, one payload
// frame marked as its continuation.
func WriteMessage(w io.Writer, m Message, opts WriteOptions) error {
	if m.Instruction == "" {
		return ErrEmptyInstruction
	}
	var flags uint16
	if m.Reply {
		flags |= frame.FlagReply
	}
	head := frame.Frame{
		Header: frame.Header{MessageID: m.ID, Flags: flags},
		Body:   []byte(m.Instruction),
	}
	if m.HasPayload {
		head.Header.Flags |= frame.FlagMore
	}
	if err := frame.WriteFrame(w, head, opts.Limits); err != nil {
		return fmt.Errorf("protocol: write instruction: %w", err)
	}
	if !m.HasPayload {
		return nil
	}
	body := frame.Frame{
		Header: frame.Header{MessageID: m.ID, Flags: flags, Codec: opts.Codec},
		Body:   m.Payload,
	}
	if err := frame.WriteFrame(w, body, opts.Limits); err != nil {
		return fmt.Errorf("protocol: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one instruction frame and its continuation, if flagged.
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	head, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		ID:          head.Header.MessageID,
		Instruction: string(head.Body),
		Reply:       head.Header.Flags&frame.FlagReply != 0,
	}
	if !head.More() {
		return m, nil
	}
	body, err := frame.ReadFrame(r, limits)
	if err != nil {
		return Message{}, err
	}
	if body.Header.MessageID != m.ID {
		return Message{}, fmt.Errorf("%w: head=%d body=%d", ErrBrokenMultipart, m.ID, body.Header.MessageID)
	}
	m.Payload = body.Body
	m.HasPayload = true
	return m, nil
}
