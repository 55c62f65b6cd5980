// Package ocrworker manages the connection to the shared OCR worker process
// and its health-probe/restart policy.
package ocrworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/akumauu/ciallo/internal/config"
	"github.com/akumauu/ciallo/internal/ocrwire"
	"github.com/google/uuid"
)

// ErrNotConnected is returned by request methods when no worker connection
// is currently established.
var ErrNotConnected = errors.New("ocrworker: not connected")

// ErrRestartSuppressed is returned when the restart breaker is open and a
// reconnect attempt is being withheld to avoid hammering a dead worker.
var ErrRestartSuppressed = errors.New("ocrworker: restart suppressed by circuit breaker")

// Worker is a single-client-at-a-time connection to the OCR worker process,
// with a background health-probe loop that reconnects on repeated failures.
type Worker struct {
	cfg     config.OCRWorkerConfig
	logger  *slog.Logger
	breaker *restartBreaker

	mu       sync.Mutex
	conn     net.Conn
	pending  map[string]chan ocrwire.OCRResult
	pendingR map[string]chan ocrwire.RealtimeOCRResult
	pongCh   chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Worker. Connect must be called before sending requests.
func New(cfg config.OCRWorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		logger:   logger,
		breaker:  newRestartBreaker(cfg.RestartAfterFailures, 30*time.Second),
		pending:  make(map[string]chan ocrwire.OCRResult),
		pendingR: make(map[string]chan ocrwire.RealtimeOCRResult),
		pongCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the worker's Unix domain socket and starts the read loop.
func (w *Worker) Connect(ctx context.Context) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", w.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("ocrworker: dial %q: %w", w.cfg.SocketPath, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.readLoop(conn)
	return nil
}

// Close shuts the connection down and stops the health loop.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() { close(w.done) })

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// reconnect tears down the current connection and dials a fresh one,
// gated by the restart breaker so a permanently dead worker doesn't get
// redialed in a tight loop.
func (w *Worker) reconnect(ctx context.Context) error {
	if !w.breaker.allow() {
		return ErrRestartSuppressed
	}

	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()

	if err := w.Connect(ctx); err != nil {
		w.breaker.recordFailure()
		return err
	}

	w.breaker.recordSuccess()
	return nil
}

// SendOCR issues a one-shot recognition request and blocks for the result.
func (w *Worker) SendOCR(ctx context.Context, req ocrwire.OCRRequest) (ocrwire.OCRResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Type = ocrwire.TypeOCR

	ch := make(chan ocrwire.OCRResult, 1)
	w.mu.Lock()
	w.pending[req.RequestID] = ch
	conn := w.conn
	w.mu.Unlock()
	defer w.forgetPending(req.RequestID)

	if conn == nil {
		return ocrwire.OCRResult{}, ErrNotConnected
	}

	if err := ocrwire.WriteMessage(conn, req); err != nil {
		return ocrwire.OCRResult{}, fmt.Errorf("ocrworker: send ocr request: %w", err)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return ocrwire.OCRResult{}, ctx.Err()
	}
}

// SendRealtimeOCR issues a realtime diff+recognize request and blocks for
// the result.
func (w *Worker) SendRealtimeOCR(ctx context.Context, req ocrwire.RealtimeOCRRequest) (ocrwire.RealtimeOCRResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Type = ocrwire.TypeRealtimeOCR

	ch := make(chan ocrwire.RealtimeOCRResult, 1)
	w.mu.Lock()
	w.pendingR[req.RequestID] = ch
	conn := w.conn
	w.mu.Unlock()
	defer w.forgetPendingRealtime(req.RequestID)

	if conn == nil {
		return ocrwire.RealtimeOCRResult{}, ErrNotConnected
	}

	if err := ocrwire.WriteMessage(conn, req); err != nil {
		return ocrwire.RealtimeOCRResult{}, fmt.Errorf("ocrworker: send realtime ocr request: %w", err)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return ocrwire.RealtimeOCRResult{}, ctx.Err()
	}
}

// ResetRealtime clears the worker's realtime diff baseline (used when a
// realtime session starts or restarts against a new region).
func (w *Worker) ResetRealtime(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	return ocrwire.WriteMessage(conn, ocrwire.ResetRealtime{Type: ocrwire.TypeResetRealtime})
}

func (w *Worker) forgetPending(id string) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

func (w *Worker) forgetPendingRealtime(id string) {
	w.mu.Lock()
	delete(w.pendingR, id)
	w.mu.Unlock()
}

// readLoop dispatches incoming frames to pending requests or the health
// probe channel until the connection closes.
func (w *Worker) readLoop(conn net.Conn) {
	for {
		msgType, payload, err := ocrwire.ReadMessage(conn)
		if err != nil {
			w.log("ocr worker read loop ended", err)
			return
		}

		switch msgType {
		case ocrwire.TypePong:
			select {
			case w.pongCh <- struct{}{}:
			default:
			}

		case ocrwire.TypeOCRResult:
			var result ocrwire.OCRResult
			if err := ocrwire.Decode(payload, &result); err != nil {
				w.log("decode ocr result failed", err)
				continue
			}
			w.mu.Lock()
			ch, ok := w.pending[result.RequestID]
			w.mu.Unlock()
			if ok {
				ch <- result
			}

		case ocrwire.TypeRealtimeOCRResult:
			var result ocrwire.RealtimeOCRResult
			if err := ocrwire.Decode(payload, &result); err != nil {
				w.log("decode realtime ocr result failed", err)
				continue
			}
			w.mu.Lock()
			ch, ok := w.pendingR[result.RequestID]
			w.mu.Unlock()
			if ok {
				ch <- result
			}

		case ocrwire.TypeError:
			var errMsg ocrwire.ErrorMessage
			if err := ocrwire.Decode(payload, &errMsg); err == nil {
				w.log("ocr worker reported error: "+errMsg.Message, nil)
			}
		}
	}
}

// RunHealthLoop probes the worker on cfg.ProbeIntervalMS with a
// cfg.ProbeDeadlineMS pong deadline, reconnecting after
// cfg.RestartAfterFailures consecutive failures. It blocks until ctx is
// cancelled or Close is called.
func (w *Worker) RunHealthLoop(ctx context.Context) {
	interval := time.Duration(w.cfg.ProbeIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			if w.probe(ctx) {
				consecutiveFailures = 0
				continue
			}

			consecutiveFailures++
			if consecutiveFailures < w.cfg.RestartAfterFailures {
				continue
			}
			consecutiveFailures = 0

			if err := w.reconnect(ctx); err != nil {
				w.log("ocr worker restart failed", err)
			}
		}
	}
}

// probe sends a ping and waits up to cfg.ProbeDeadlineMS for a pong.
func (w *Worker) probe(ctx context.Context) bool {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return false
	}
	if err := ocrwire.WriteMessage(conn, ocrwire.Ping{Type: ocrwire.TypePing}); err != nil {
		return false
	}

	deadline := time.Duration(w.cfg.ProbeDeadlineMS) * time.Millisecond
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-w.pongCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) log(message string, err error) {
	if w.logger == nil {
		return
	}
	if err != nil {
		w.logger.Warn(message, "error", err.Error())
		return
	}
	w.logger.Warn(message)
}
