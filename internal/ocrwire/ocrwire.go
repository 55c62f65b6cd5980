// Package ocrwire implements the length-prefixed MessagePack framing used to
// talk to the OCR worker process.
package ocrwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameBytes bounds a single frame's payload, guarding against a corrupt
// or adversarial length prefix causing an unbounded allocation.
const MaxFrameBytes = 32 << 20

// Message type tags, mirroring the OCR worker's own dispatch on "type".
const (
	TypePing              = "ping"
	TypePong              = "pong"
	TypeOCR               = "ocr"
	TypeOCRResult         = "ocr_result"
	TypeRealtimeOCR       = "realtime_ocr"
	TypeRealtimeOCRResult = "realtime_ocr_result"
	TypeResetRealtime     = "reset_realtime"
	TypeShutdown          = "shutdown"
	TypeError             = "error"
)

// Line is a single recognized text line with its screen-space bounding box.
type Line struct {
	Text string `msgpack:"text"`
	X    int    `msgpack:"x"`
	Y    int    `msgpack:"y"`
	W    int    `msgpack:"w"`
	H    int    `msgpack:"h"`
}

// Ping is a health-probe request sent to the worker.
type Ping struct {
	Type string `msgpack:"type"`
}

// Pong is the worker's health-probe response.
type Pong struct {
	Type string `msgpack:"type"`
}

// Region is an optional capture-area restriction in screen coordinates.
type Region struct {
	X int `msgpack:"x"`
	Y int `msgpack:"y"`
	W int `msgpack:"w"`
	H int `msgpack:"h"`
}

// OCRRequest asks the worker to recognize text in a single still image.
type OCRRequest struct {
	Type      string  `msgpack:"type"`
	RequestID string  `msgpack:"request_id"`
	Image     []byte  `msgpack:"image"`
	Region    *Region `msgpack:"region,omitempty"`
}

// OCRResult is the worker's response to an OCRRequest.
type OCRResult struct {
	Type      string `msgpack:"type"`
	RequestID string `msgpack:"request_id"`
	Text      string `msgpack:"text"`
	Lines     []Line `msgpack:"lines"`
	ElapsedMS int64  `msgpack:"elapsed_ms"`
}

// RealtimeOCRRequest asks the worker to diff a new frame against the
// previous realtime tick and recognize only what changed.
type RealtimeOCRRequest struct {
	Type      string `msgpack:"type"`
	RequestID string `msgpack:"request_id"`
	Image     []byte `msgpack:"image"`
}

// RealtimeOCRResult is the worker's response to a RealtimeOCRRequest.
type RealtimeOCRResult struct {
	Type      string  `msgpack:"type"`
	RequestID string  `msgpack:"request_id"`
	NoChange  bool    `msgpack:"no_change"`
	MAE       float64 `msgpack:"mae"`
	Lines     []Line  `msgpack:"lines"`
	ElapsedMS int64   `msgpack:"elapsed_ms"`
}

// ResetRealtime clears the worker's realtime diff baseline.
type ResetRealtime struct {
	Type string `msgpack:"type"`
}

// Shutdown asks the worker to exit gracefully.
type Shutdown struct {
	Type string `msgpack:"type"`
}

// ErrorMessage carries a worker-side failure back to the daemon.
type ErrorMessage struct {
	Type      string `msgpack:"type"`
	RequestID string `msgpack:"request_id,omitempty"`
	Message   string `msgpack:"message"`
}

type typeTag struct {
	Type string `msgpack:"type"`
}

// WriteMessage encodes v as MessagePack and writes it as a length-prefixed
// frame: a 4-byte big-endian payload length followed by the payload.
func WriteMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("ocrwire: marshal message: %w", err)
	}
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("ocrwire: payload of %d bytes exceeds max frame size %d", len(payload), MaxFrameBytes)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ocrwire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ocrwire: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed frame and returns its "type" tag
// along with the raw payload bytes, deferring full decode to the caller
// (via Decode) once the tag has been dispatched on.
func ReadMessage(r io.Reader) (msgType string, payload []byte, err error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", nil, err
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameBytes {
		return "", nil, fmt.Errorf("ocrwire: frame length %d exceeds max frame size %d", length, MaxFrameBytes)
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, fmt.Errorf("ocrwire: read payload: %w", err)
	}

	var tag typeTag
	if err := msgpack.Unmarshal(payload, &tag); err != nil {
		return "", nil, fmt.Errorf("ocrwire: read type tag: %w", err)
	}

	return tag.Type, payload, nil
}

// Decode unmarshals a payload previously returned by ReadMessage into a
// concrete message type, e.g. Decode(payload, &ocrwire.OCRResult{}).
func Decode(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("ocrwire: decode message: %w", err)
	}
	return nil
}
