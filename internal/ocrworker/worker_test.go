package ocrworker

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/akumauu/ciallo/internal/config"
	"github.com/akumauu/ciallo/internal/ocrwire"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal stand-in for the OCR worker process, listening on
// a Unix domain socket and answering pings and OCR requests.
type fakeServer struct {
	ln net.Listener
}

func startFakeServer(t *testing.T, handle func(net.Conn)) *fakeServer {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "ocrworker.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		handle(conn)
	}()

	t.Cleanup(func() { _ = ln.Close() })
	return &fakeServer{ln: ln}
}

func (f *fakeServer) socketPath() string {
	return f.ln.Addr().String()
}

func echoServer(conn net.Conn) {
	defer conn.Close()
	for {
		msgType, payload, err := ocrwire.ReadMessage(conn)
		if err != nil {
			return
		}

		switch msgType {
		case ocrwire.TypePing:
			_ = ocrwire.WriteMessage(conn, ocrwire.Pong{Type: ocrwire.TypePong})

		case ocrwire.TypeOCR:
			var req ocrwire.OCRRequest
			if err := ocrwire.Decode(payload, &req); err != nil {
				continue
			}
			_ = ocrwire.WriteMessage(conn, ocrwire.OCRResult{
				Type:      ocrwire.TypeOCRResult,
				RequestID: req.RequestID,
				Text:      "recognized text",
				ElapsedMS: 5,
			})

		case ocrwire.TypeRealtimeOCR:
			var req ocrwire.RealtimeOCRRequest
			if err := ocrwire.Decode(payload, &req); err != nil {
				continue
			}
			_ = ocrwire.WriteMessage(conn, ocrwire.RealtimeOCRResult{
				Type:      ocrwire.TypeRealtimeOCRResult,
				RequestID: req.RequestID,
				NoChange:  true,
				MAE:       0.5,
			})
		}
	}
}

func testConfig(socketPath string) config.OCRWorkerConfig {
	return config.OCRWorkerConfig{
		SocketPath:           socketPath,
		ProbeIntervalMS:      20,
		ProbeDeadlineMS:      50,
		RestartAfterFailures: 3,
	}
}

func TestWorkerSendOCRRoundTrips(t *testing.T) {
	srv := startFakeServer(t, echoServer)

	w := New(testConfig(srv.socketPath()), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Connect(ctx))
	defer w.Close()

	result, err := w.SendOCR(ctx, ocrwire.OCRRequest{Image: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, "recognized text", result.Text)
}

func TestWorkerSendRealtimeOCRRoundTrips(t *testing.T) {
	srv := startFakeServer(t, echoServer)

	w := New(testConfig(srv.socketPath()), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Connect(ctx))
	defer w.Close()

	result, err := w.SendRealtimeOCR(ctx, ocrwire.RealtimeOCRRequest{Image: []byte{1, 2, 3}})
	require.NoError(t, err)
	require.True(t, result.NoChange)
	require.InDelta(t, 0.5, result.MAE, 1e-9)
}

func TestWorkerSendOCRFailsWithoutConnection(t *testing.T) {
	w := New(testConfig(filepath.Join(t.TempDir(), "unused.sock")), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := w.SendOCR(ctx, ocrwire.OCRRequest{})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestWorkerProbeSucceedsAgainstEchoServer(t *testing.T) {
	srv := startFakeServer(t, echoServer)

	w := New(testConfig(srv.socketPath()), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Connect(ctx))
	defer w.Close()

	require.True(t, w.probe(ctx))
}

func TestWorkerProbeFailsWhenServerNeverResponds(t *testing.T) {
	silent := startFakeServer(t, func(conn net.Conn) {
		// Accept but never reply, forcing the probe deadline to fire.
		<-make(chan struct{})
		_ = conn
	})

	cfg := testConfig(silent.socketPath())
	cfg.ProbeDeadlineMS = 30

	w := New(cfg, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Connect(ctx))
	defer w.Close()

	require.False(t, w.probe(ctx))
}

func TestWorkerReconnectSuppressedWhenBreakerOpen(t *testing.T) {
	missingSocket := filepath.Join(t.TempDir(), "does-not-exist.sock")
	cfg := testConfig(missingSocket)

	w := New(cfg, nil)
	w.breaker.recordFailure()
	w.breaker.recordFailure()
	w.breaker.recordFailure()
	require.Equal(t, "open", w.breaker.State())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := w.reconnect(ctx)
	require.ErrorIs(t, err, ErrRestartSuppressed)
}

func TestWorkerCloseIsIdempotent(t *testing.T) {
	srv := startFakeServer(t, echoServer)

	w := New(testConfig(srv.socketPath()), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, w.Connect(ctx))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

