// Package clipboard guards process-global clipboard mutation so a capture
// cycle can restore prior contents on every exit path.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/akumauu/ciallo/internal/config"
)

// CaptureTimeout bounds a single read or write against the system
// clipboard.
const CaptureTimeout = 80 * time.Millisecond

// ErrAlreadyAcquired is returned by Acquire when another guard already owns
// the clipboard; two acquisitions cannot be outstanding simultaneously.
var ErrAlreadyAcquired = errors.New("clipboard: acquisition already outstanding")

var acquired atomic.Bool

// Guard is a scoped clipboard acquisition. It saves the clipboard's original
// contents on construction and restores them on Release, regardless of
// whether the capture that used it succeeded, errored, or was cancelled.
type Guard struct {
	writeArgv   []string
	original    string
	hadOriginal bool
	released    atomic.Bool
}

// Acquire saves the current clipboard contents and takes exclusive ownership
// of the clipboard until Release is called. It fails fast if another
// acquisition is already outstanding.
func Acquire(ctx context.Context, cmd config.CommandConfig) (*Guard, error) {
	if !acquired.CompareAndSwap(false, true) {
		return nil, ErrAlreadyAcquired
	}

	g := &Guard{writeArgv: cmd.Argv}

	readCtx, cancel := context.WithTimeout(ctx, CaptureTimeout)
	defer cancel()

	original, err := readClipboard(readCtx)
	if err != nil {
		acquired.Store(false)
		return nil, fmt.Errorf("read clipboard: %w", err)
	}

	g.original = original
	g.hadOriginal = true
	return g, nil
}

// Set writes text to the clipboard using the configured writer command.
func (g *Guard) Set(ctx context.Context, text string) error {
	if len(g.writeArgv) == 0 {
		return fmt.Errorf("clipboard: write command not configured")
	}

	writeCtx, cancel := context.WithTimeout(ctx, CaptureTimeout)
	defer cancel()

	if err := runCommandWithInput(writeCtx, g.writeArgv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// Release restores the clipboard's original contents and returns ownership.
// It is safe to call multiple times; only the first call has effect.
func (g *Guard) Release(ctx context.Context) error {
	if !g.released.CompareAndSwap(false, true) {
		return nil
	}
	defer acquired.Store(false)

	if !g.hadOriginal || len(g.writeArgv) == 0 {
		return nil
	}

	restoreCtx, cancel := context.WithTimeout(ctx, CaptureTimeout)
	defer cancel()

	if err := runCommandWithInput(restoreCtx, g.writeArgv, g.original); err != nil {
		return fmt.Errorf("restore clipboard: %w", err)
	}
	return nil
}

// readClipboard reads the current clipboard text via wl-paste, mirroring the
// Wayland clipboard tooling the writer side (wl-copy) already assumes.
func readClipboard(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "wl-paste", "--no-newline")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// wl-paste exits non-zero when the clipboard is empty; treat as blank.
			return "", nil
		}
		return "", err
	}
	return stdout.String(), nil
}

// runCommandWithInput executes argv and writes input to its stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
