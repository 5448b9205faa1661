// Package split runs the classifier across two parties: the client keeps
// the spiking backbone and the secret key, the server keeps the final
// linear layer and only ever sees ciphertexts.
package split

import (
	"encoding/gob"
	"fmt"
	"io"
)

func init() {
	// Register types for gob encoding
	gob.Register(ForwardPayload{})
	gob.Register(LogitsPayload{})
}

// MessageType defines message types for the split inference protocol
type MessageType int

const (
	MsgForwardInput MessageType = iota
	MsgForwardOutput
	MsgDone
	MsgError
)

// Message represents a message in the split inference protocol
type Message struct {
	Type    MessageType
	Payload interface{}
}

// ForwardPayload carries one sample's encrypted features to the server.
type ForwardPayload struct {
	BatchID    int
	Sample     int
	Features   int    // number of meaningful slots
	Ciphertext []byte // serialized ciphertext
	Level      int
	ScaleFloat float64
}

// LogitsPayload carries one sample's encrypted logits back to the client.
type LogitsPayload struct {
	BatchID    int
	Sample     int
	Classes    int
	Ciphertext []byte
	Level      int
	ScaleFloat float64
}

// Protocol handles split inference communication
type Protocol struct {
	encoder *gob.Encoder
	decoder *gob.Decoder
}

// NewProtocol creates a new protocol handler
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	p := &Protocol{}
	if w != nil {
		p.encoder = gob.NewEncoder(w)
	}
	if r != nil {
		p.decoder = gob.NewDecoder(r)
	}
	return p
}

// Send sends a message
func (p *Protocol) Send(msg *Message) error {
	if p.encoder == nil {
		return fmt.Errorf("protocol has no writer")
	}
	return p.encoder.Encode(msg)
}

// Receive receives a message
func (p *Protocol) Receive() (*Message, error) {
	if p.decoder == nil {
		return nil, fmt.Errorf("protocol has no reader")
	}
	var msg Message
	if err := p.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendForward sends one sample's encrypted features
func (p *Protocol) SendForward(payload ForwardPayload) error {
	return p.Send(&Message{Type: MsgForwardInput, Payload: payload})
}

// SendLogits sends one sample's encrypted logits
func (p *Protocol) SendLogits(payload LogitsPayload) error {
	return p.Send(&Message{Type: MsgForwardOutput, Payload: payload})
}

// SendDone signals completion
func (p *Protocol) SendDone() error {
	return p.Send(&Message{Type: MsgDone})
}

// SendError sends an error message
func (p *Protocol) SendError(err error) error {
	return p.Send(&Message{
		Type:    MsgError,
		Payload: err.Error(),
	})
}

// receiveKind reads one message, turning MsgError into an error and
// MsgDone into io.EOF.
func (p *Protocol) receiveKind(want MessageType) (*Message, error) {
	msg, err := p.Receive()
	if err != nil {
		return nil, err
	}
	if msg.Type == MsgError {
		return nil, fmt.Errorf("remote error: %v", msg.Payload)
	}
	if msg.Type == MsgDone {
		return nil, io.EOF
	}
	if msg.Type != want {
		return nil, fmt.Errorf("expected message %d, got %d", want, msg.Type)
	}
	return msg, nil
}

// ReceiveForward receives a forward pass payload
func (p *Protocol) ReceiveForward() (*ForwardPayload, error) {
	msg, err := p.receiveKind(MsgForwardInput)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(ForwardPayload)
	if !ok {
		return nil, fmt.Errorf("invalid forward payload type")
	}
	return &payload, nil
}

// ReceiveLogits receives a logits payload
func (p *Protocol) ReceiveLogits() (*LogitsPayload, error) {
	msg, err := p.receiveKind(MsgForwardOutput)
	if err != nil {
		return nil, err
	}
	payload, ok := msg.Payload.(LogitsPayload)
	if !ok {
		return nil, fmt.Errorf("invalid logits payload type")
	}
	return &payload, nil
}
