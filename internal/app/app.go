package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akumauu/ciallo/internal/accessibility"
	"github.com/akumauu/ciallo/internal/audiocapture"
	"github.com/akumauu/ciallo/internal/cli"
	"github.com/akumauu/ciallo/internal/config"
	"github.com/akumauu/ciallo/internal/doctor"
	"github.com/akumauu/ciallo/internal/logging"
	"github.com/akumauu/ciallo/internal/screenshot"
	"github.com/akumauu/ciallo/internal/uiserver"
	"github.com/akumauu/ciallo/internal/version"
)

// Runner is the CLI entrypoint. Grounded on sotto's own internal/app.Runner
// (same Stdout/Stderr/Logger fields, same Execute dispatch shape); the
// command bodies underneath are rewritten from a one-shot dictation
// toggle onto a persistent daemon that a `run` command starts and every
// other command talks to over the UI transport.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// ScreenshotCapturer and AccessibilityGrabber are injected so tests can
	// run commandRun against fakes; a real ciallo binary leaves both nil,
	// since concrete backends for both are out of scope.
	ScreenshotCapturer   screenshot.Capturer
	AccessibilityGrabber accessibility.Grabber
}

// Execute is the package-level entrypoint cmd/ciallo calls.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute parses args and dispatches to the matching command handler.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("ciallo"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("ciallo"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded.Config, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx, cfgLoaded.Config)
	case cli.CommandCancel:
		return r.commandCancel(ctx, cfgLoaded.Config)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// commandDevices lists available audio input sources.
func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audiocapture.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			availability,
			muted,
		)
	}

	return 0
}

// commandRun constructs and starts the daemon, blocking until ctx is
// cancelled.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateDir, err := stateDirectory()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: resolve state directory: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		fmt.Fprintf(r.Stderr, "error: create state directory: %v\n", err)
		return 1
	}

	daemon, err := NewDaemon(DaemonConfig{
		Config:               cfg,
		Logger:               logger,
		ScreenshotCapturer:   r.ScreenshotCapturer,
		AccessibilityGrabber: r.AccessibilityGrabber,
		StateDir:             stateDir,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if err := daemon.Run(runCtx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon exited with error", "error", err.Error())
		return 1
	}
	return 0
}

// commandStatus reports the running daemon's FSM state, or "not running"
// when no daemon answers the health check.
func (r Runner) commandStatus(ctx context.Context, cfg config.Config) int {
	resp, err := sendCommand(ctx, cfg.UIServer.ListenAddr, uiserver.Command{Command: uiserver.CmdGetState})
	if err != nil {
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(r.Stdout, "not running")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintf(r.Stdout, "%v\n", resp.Result)
	return 0
}

// commandCancel forwards `cancel_current` to a running daemon.
func (r Runner) commandCancel(ctx context.Context, cfg config.Config) int {
	resp, err := sendCommand(ctx, cfg.UIServer.ListenAddr, uiserver.Command{Command: uiserver.CmdCancelCurrent})
	if err != nil {
		if errors.Is(err, errNoDaemon) {
			fmt.Fprintln(r.Stderr, "error: no running ciallo daemon")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintln(r.Stdout, "cancelled")
	return 0
}

// stateDirectory resolves where per-daemon state (cache, history) lives,
// mirroring logging's own XDG_STATE_HOME resolution.
func stateDirectory() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return xdg + "/ciallo", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home + "/.local/state/ciallo", nil
}
