// Package wire implements the length-prefixed JSON framing used between a
// Trader's IPC server and the Manager's IPC client: a 4-byte big-endian
// length prefix followed by that many bytes of UTF-8 JSON.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// FrameType discriminates the four message shapes on the wire.
type FrameType string

const (
	FrameRequest   FrameType = "request"
	FrameResponse  FrameType = "response"
	FramePush      FrameType = "push"
	FrameHeartbeat FrameType = "heartbeat"
)

// MaxFrameSize bounds a single frame's JSON payload so a corrupt or
// malicious length prefix cannot force an unbounded allocation.
const MaxFrameSize = 16 << 20 // 16 MiB

// Frame is the union of all four frame shapes. Only the fields relevant to
// Type are populated; the rest are left zero and omitted on encode.
type Frame struct {
	Type FrameType `json:"type"`

	// request
	RequestID   string          `json:"request_id,omitempty"`
	RequestType string          `json:"request_type,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`

	// response (RequestID is reused to correlate)
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`

	// push
	MsgType string `json:"msg_type,omitempty"`

	// heartbeat
	TS string `json:"ts,omitempty"`
}

// NewRequest builds a request frame, marshalling data into the Data field.
func NewRequest(requestID, requestType string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: marshal request data: %w", err)
	}
	return Frame{Type: FrameRequest, RequestID: requestID, RequestType: requestType, Data: raw}, nil
}

// NewResponse builds a success or failure response frame for requestID.
func NewResponse(requestID string, data any, errMsg string) (Frame, error) {
	ok := errMsg == ""
	f := Frame{Type: FrameResponse, RequestID: requestID, Success: &ok, Error: errMsg}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Frame{}, fmt.Errorf("wire: marshal response data: %w", err)
		}
		f.Data = raw
	}
	return f, nil
}

// NewPush builds an unsolicited server-to-client event frame.
func NewPush(msgType string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: marshal push data: %w", err)
	}
	return Frame{Type: FramePush, MsgType: msgType, Data: raw}, nil
}

// NewHeartbeat builds a liveness frame carrying an RFC3339 timestamp.
func NewHeartbeat(ts string) Frame {
	return Frame{Type: FrameHeartbeat, TS: ts}
}

// WriteFrame encodes f as JSON and writes it length-prefixed to w.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("wire: frame too large: %d bytes", len(body))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// Reader reads length-prefixed frames off a stream. It is not safe for
// concurrent use by multiple goroutines.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for frame-at-a-time reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadFrame blocks for the next frame. On malformed length, unterminated
// body, or JSON parse error it returns a non-nil error; the caller should
// treat any error here as fatal to the connection.
func (r *Reader) ReadFrame() (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Frame{}, fmt.Errorf("wire: frame length %d exceeds max %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return Frame{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	return f, nil
}
