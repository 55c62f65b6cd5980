// Package uiserver implements the local WebSocket UI command/event
// transport: a single-instance HTTP+WebSocket server accepting the
// desktop UI's command requests and pushing session lifecycle events to
// every connected client. Transport and framing are grounded on
// rbright-sotto's internal/ipc (Handler interface, Accept loop, one
// goroutine per connection) generalized from a line-delimited JSON
// Unix-socket protocol to a WebSocket JSON-envelope protocol carried
// over github.com/coder/websocket, the client library already used
// elsewhere in the pack (MrWong99-glyphoxa's realtime speech providers)
// for exactly this raw conn.Read/Write-plus-json.Unmarshal style.
package uiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Dispatcher executes one Command and returns its result or an error to
// be reported back to the issuing client. Implemented by the top-level
// daemon runner, which has access to every subsystem a command might
// touch (scheduler, cache, history, realtime session).
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

// Server is the UI command/event transport.
type Server struct {
	addr       string
	dispatcher Dispatcher
	log        *slog.Logger

	hub *hub

	httpServer *http.Server
	listener   net.Listener
}

// New constructs a Server. Serve must be called to begin accepting
// connections.
func New(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:       cfg.ListenAddr,
		dispatcher: cfg.Dispatcher,
		log:        log,
		hub:        newHub(log),
	}
}

// ServerConfig configures a Server.
type ServerConfig struct {
	ListenAddr string
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// Serve acquires the configured address under a single-instance guard
// and blocks serving HTTP/WebSocket connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := Acquire(ctx, s.addr, 200*time.Millisecond, 3)
	if err != nil {
		return fmt.Errorf("uiserver: acquire %s: %w", s.addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		err := s.httpServer.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler returns the server's HTTP mux (health check + WebSocket
// upgrade endpoint), letting tests drive it behind an httptest.Server
// without exercising the single-instance Acquire logic.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("uiserver: websocket accept failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan envelope, 32)}
	s.hub.register(c)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.hub.writeLoop(c)
	}()

	s.readLoop(r.Context(), conn, c)

	s.hub.unregister(c)
	wg.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop decodes inbound Command frames and dispatches each to the
// configured Dispatcher, replying with a Response envelope.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(c, Response{OK: false, Error: fmt.Sprintf("decode command: %v", err)})
			continue
		}

		go s.handle(ctx, c, cmd)
	}
}

func (s *Server) handle(ctx context.Context, c *client, cmd Command) {
	if s.dispatcher == nil {
		s.reply(c, Response{ID: cmd.ID, OK: false, Error: "no dispatcher configured"})
		return
	}

	result, err := s.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		s.reply(c, Response{ID: cmd.ID, OK: false, Error: err.Error()})
		return
	}
	s.reply(c, Response{ID: cmd.ID, OK: true, Result: result})
}

func (s *Server) reply(c *client, resp Response) {
	select {
	case c.send <- responseEnvelope(resp):
	default:
		s.log.Warn("uiserver: dropping response for slow client")
	}
}

// Emit broadcasts an event to every connected UI client.
func (s *Server) Emit(event Event) {
	s.hub.broadcast(eventEnvelope(event))
}
