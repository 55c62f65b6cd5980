package ocrwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadMessageRoundTrips(t *testing.T) {
	var buf bytes.Buffer

	req := OCRRequest{
		Type:      TypeOCR,
		RequestID: "req-1",
		Image:     []byte{0x01, 0x02, 0x03},
		Region:    &Region{X: 10, Y: 20, W: 300, H: 150},
	}
	require.NoError(t, WriteMessage(&buf, req))

	msgType, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeOCR, msgType)

	var got OCRRequest
	require.NoError(t, Decode(payload, &got))
	require.Equal(t, req, got)
}

func TestWriteReadMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteMessage(&buf, Ping{Type: TypePing}))
	require.NoError(t, WriteMessage(&buf, OCRResult{
		Type:      TypeOCRResult,
		RequestID: "req-2",
		Text:      "hello world",
		Lines:     []Line{{Text: "hello world", X: 0, Y: 0, W: 100, H: 20}},
		ElapsedMS: 42,
	}))

	msgType, _, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypePing, msgType)

	msgType, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeOCRResult, msgType)

	var result OCRResult
	require.NoError(t, Decode(payload, &result))
	require.Equal(t, "hello world", result.Text)
	require.Equal(t, int64(42), result.ElapsedMS)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, _, err := ReadMessage(&buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds max frame size")
}

func TestReadMessageReturnsErrorOnTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Shutdown{Type: TypeShutdown}))

	truncated := buf.Bytes()[:buf.Len()-1]
	_, _, err := ReadMessage(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestRealtimeOCRResultNoChangeRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	result := RealtimeOCRResult{
		Type:      TypeRealtimeOCRResult,
		RequestID: "tick-9",
		NoChange:  true,
		MAE:       1.2,
	}
	require.NoError(t, WriteMessage(&buf, result))

	msgType, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeRealtimeOCRResult, msgType)

	var got RealtimeOCRResult
	require.NoError(t, Decode(payload, &got))
	require.True(t, got.NoChange)
	require.InDelta(t, 1.2, got.MAE, 1e-9)
}

func TestErrorMessageRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, ErrorMessage{
		Type:      TypeError,
		RequestID: "req-3",
		Message:   "worker crashed",
	}))

	msgType, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, TypeError, msgType)

	var got ErrorMessage
	require.NoError(t, Decode(payload, &got))
	require.Equal(t, "worker crashed", got.Message)
}
