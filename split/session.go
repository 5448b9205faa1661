package split

import (
	"errors"
	"fmt"
	"io"
	"time"

	"snnssd/core/ckkswrapper"
	"snnssd/tensor"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// Server answers encrypted feature vectors with encrypted logits until the
// client signals completion.
type Server struct {
	head  *EncryptedHead
	proto *Protocol

	// Busy accumulates time spent inside the encrypted head.
	Busy time.Duration
}

func NewServer(head *EncryptedHead, proto *Protocol) *Server {
	return &Server{head: head, proto: proto}
}

// Serve processes requests until MsgDone or a transport error. Failures
// evaluating a request are reported to the client before returning.
func (s *Server) Serve() error {
	for {
		req, err := s.proto.ReceiveForward()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		resp, err := s.handle(req)
		if err != nil {
			if sendErr := s.proto.SendError(err); sendErr != nil {
				return fmt.Errorf("%v (while reporting: %w)", err, sendErr)
			}
			return err
		}
		if err := s.proto.SendLogits(*resp); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
}

func (s *Server) handle(req *ForwardPayload) (*LogitsPayload, error) {
	if req.Features != s.head.InDim() {
		return nil, fmt.Errorf("sample %d carries %d features, head expects %d", req.Sample, req.Features, s.head.InDim())
	}
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(req.Ciphertext); err != nil {
		return nil, fmt.Errorf("unmarshal sample %d: %w", req.Sample, err)
	}
	start := time.Now()
	out, err := s.head.Forward(ct)
	s.Busy += time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", req.Sample, err)
	}
	data, err := out.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal sample %d: %w", req.Sample, err)
	}
	return &LogitsPayload{
		BatchID:    req.BatchID,
		Sample:     req.Sample,
		Classes:    s.head.Classes(),
		Ciphertext: data,
		Level:      out.Level(),
		ScaleFloat: out.Scale.Float64(),
	}, nil
}

// Client encrypts pooled features, ships them to the server and decrypts
// the returned logits.
type Client struct {
	he    *ckkswrapper.HeContext
	proto *Protocol

	EncryptTime time.Duration
	DecryptTime time.Duration
}

func NewClient(he *ckkswrapper.HeContext, proto *Protocol) *Client {
	return &Client{he: he, proto: proto}
}

// Infer maps features (B, C) to logits (B, classes), one round trip per
// sample.
func (c *Client) Infer(batchID int, features *tensor.Tensor) (*tensor.Tensor, error) {
	if features.Rank() != 2 {
		return nil, fmt.Errorf("features must be (B, C), got %v", features.Shape)
	}
	batch, dim := features.Shape[0], features.Shape[1]
	var logits *tensor.Tensor
	for b := 0; b < batch; b++ {
		start := time.Now()
		ct, err := c.he.EncryptReal(features.Data[b*dim : (b+1)*dim])
		if err != nil {
			return nil, fmt.Errorf("encrypt sample %d: %w", b, err)
		}
		data, err := ct.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal sample %d: %w", b, err)
		}
		c.EncryptTime += time.Since(start)

		err = c.proto.SendForward(ForwardPayload{
			BatchID:    batchID,
			Sample:     b,
			Features:   dim,
			Ciphertext: data,
			Level:      ct.Level(),
			ScaleFloat: ct.Scale.Float64(),
		})
		if err != nil {
			return nil, fmt.Errorf("send sample %d: %w", b, err)
		}
		resp, err := c.proto.ReceiveLogits()
		if err != nil {
			return nil, fmt.Errorf("receive sample %d: %w", b, err)
		}
		if resp.BatchID != batchID || resp.Sample != b {
			return nil, fmt.Errorf("response for batch %d sample %d, want %d/%d", resp.BatchID, resp.Sample, batchID, b)
		}

		start = time.Now()
		out := new(rlwe.Ciphertext)
		if err := out.UnmarshalBinary(resp.Ciphertext); err != nil {
			return nil, fmt.Errorf("unmarshal logits %d: %w", b, err)
		}
		vals, err := c.he.DecryptReal(out, resp.Classes)
		if err != nil {
			return nil, fmt.Errorf("decrypt logits %d: %w", b, err)
		}
		c.DecryptTime += time.Since(start)

		if logits == nil {
			logits = tensor.New(batch, resp.Classes)
		}
		copy(logits.Data[b*resp.Classes:(b+1)*resp.Classes], vals)
	}
	if logits == nil {
		return nil, fmt.Errorf("empty batch")
	}
	return logits, nil
}

// Close tells the server no more samples follow.
func (c *Client) Close() error {
	return c.proto.SendDone()
}
