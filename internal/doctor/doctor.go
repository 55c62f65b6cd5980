// Package doctor runs runtime readiness diagnostics for configuration,
// audio input, the DeepSeek API key, and the OCR worker socket.
// Grounded on sotto's own internal/doctor/doctor.go (same Check/Report
// shape, same checkBinary helper), with the check set
// replaced: the Riva HTTP ready probe becomes a DeepSeek API key
// presence check (translation is now a hosted chat completion call, not
// a local gRPC service to ping), and a new OCR worker socket check
// replaces nothing from the teacher since sotto had no equivalent
// worker process. The Hyprland-specific session checks are dropped:
// the indicator backend talks to the freedesktop DBus notification
// service, not Hyprland IPC, so a Hyprland session is no longer a
// prerequisite.
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/akumauu/ciallo/internal/audiocapture"
	"github.com/akumauu/ciallo/internal/config"
	"github.com/akumauu/ciallo/internal/ocrworker"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkDeepSeekAPIKey())
	checks = append(checks, checkOCRWorker(cfg.Config))

	return Report{Checks: checks}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	selection, err := audiocapture.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkDeepSeekAPIKey confirms the translation backend's API key is
// present in the environment. The key itself is never logged.
func checkDeepSeekAPIKey() Check {
	if strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")) == "" {
		return Check{Name: "deepseek.api_key", Pass: false, Message: "DEEPSEEK_API_KEY is not set"}
	}
	return Check{Name: "deepseek.api_key", Pass: true, Message: "DEEPSEEK_API_KEY is set"}
}

// checkOCRWorker dials the configured OCR worker socket and reports
// whether the connection succeeds, without leaving a health loop
// running.
func checkOCRWorker(cfg config.Config) Check {
	if strings.TrimSpace(cfg.OCRWorker.SocketPath) == "" {
		return Check{Name: "ocr.worker", Pass: false, Message: "ocr_worker.socket_path is empty"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	worker := ocrworker.New(cfg.OCRWorker, slog.New(slog.DiscardHandler))
	if err := worker.Connect(ctx); err != nil {
		return Check{Name: "ocr.worker", Pass: false, Message: err.Error()}
	}
	_ = worker.Close()
	return Check{Name: "ocr.worker", Pass: true, Message: fmt.Sprintf("reachable at %s", cfg.OCRWorker.SocketPath)}
}
