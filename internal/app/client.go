package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/akumauu/ciallo/internal/uiserver"
)

// errNoDaemon means no running ciallo daemon answered the health check at
// addr, distinguishing "nothing to forward to" from a genuine transport
// failure the same way sotto's isSocketMissing/isConnectionRefused pair
// distinguished a missing IPC socket from a real forwarding error.
var errNoDaemon = errors.New("app: no running ciallo daemon")

// sendCommand dials addr's UI transport, issues cmd, and waits for its
// matching Response. Adapted from sotto's internal/ipc.Send single-shot
// forwarding call, generalized from a Unix socket + line-JSON exchange to
// a WebSocket connection carrying the same command/response envelope
// internal/uiserver uses for the desktop UI client.
func sendCommand(ctx context.Context, addr string, cmd uiserver.Command) (uiserver.Response, error) {
	if !daemonAlive(ctx, addr) {
		return uiserver.Response{}, errNoDaemon
	}

	dialCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return uiserver.Response{}, fmt.Errorf("app: dial %s: %w", addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	payload, err := json.Marshal(cmd)
	if err != nil {
		return uiserver.Response{}, fmt.Errorf("app: encode command: %w", err)
	}

	writeCtx, writeCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer writeCancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return uiserver.Response{}, fmt.Errorf("app: send command: %w", err)
	}

	readCtx, readCancel := context.WithTimeout(ctx, 3*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		return uiserver.Response{}, fmt.Errorf("app: read response: %w", err)
	}

	var resp struct {
		Kind string `json:"kind"`
		uiserver.Response
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return uiserver.Response{}, fmt.Errorf("app: decode response: %w", err)
	}
	return resp.Response, nil
}

// daemonAlive reports whether a ciallo daemon is answering health checks
// at addr.
func daemonAlive(ctx context.Context, addr string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
