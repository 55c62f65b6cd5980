// Package indicator handles visual wake-state notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/akumauu/ciallo/internal/config"
)

// Controller is the session-facing indicator contract driven by wake and
// scheduler state transitions.
type Controller interface {
	ShowWakeDetected(context.Context)
	ShowWakeConfirmed(context.Context)
	ShowWakeRejected(context.Context)
	ShowError(context.Context, string)
	CueWakeDetected(context.Context)
	CueWakeConfirmed(context.Context)
	CueWakeRejected(context.Context)
	CueForceCancel(context.Context)
	Hide(context.Context)
}

// DesktopNotify is the concrete indicator implementation used by runtime
// sessions. It routes notifications through the freedesktop DBus
// notification service and plays cues through PulseAudio.
type DesktopNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// NewDesktopNotify creates an indicator controller from config.
func NewDesktopNotify(cfg config.IndicatorConfig, logger *slog.Logger) *DesktopNotify {
	return &DesktopNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowWakeDetected signals stage-one wake promotion.
func (d *DesktopNotify) ShowWakeDetected(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, 300000, d.messages.wakeDetected)
	})
}

// ShowWakeConfirmed signals stage-two wake confirmation.
func (d *DesktopNotify) ShowWakeConfirmed(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, 1500, d.messages.wakeConfirmed)
	})
}

// ShowWakeRejected dismisses the indicator when a wake candidate does not
// clear the second stage within the confirm window.
func (d *DesktopNotify) ShowWakeRejected(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

// ShowError displays an error-state indicator message.
func (d *DesktopNotify) ShowError(ctx context.Context, text string) {
	if !d.cfg.Enable {
		return
	}
	if text == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1600
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, timeout, text)
	})
}

// CueWakeDetected emits the stage-one wake audio cue.
func (d *DesktopNotify) CueWakeDetected(context.Context) {
	d.playCue(cueWakeDetected)
}

// CueWakeConfirmed emits the stage-two confirmation audio cue.
func (d *DesktopNotify) CueWakeConfirmed(context.Context) {
	d.playCue(cueWakeConfirmed)
}

// CueWakeRejected emits the wake-rejection audio cue.
func (d *DesktopNotify) CueWakeRejected(context.Context) {
	d.playCue(cueWakeRejected)
}

// CueForceCancel emits the audio cue for a preemption-driven cancellation.
func (d *DesktopNotify) CueForceCancel(context.Context) {
	d.playCue(cueForceCancel)
}

// Hide dismisses the active indicator surface.
func (d *DesktopNotify) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

// notify dispatches indicator output through the desktop DBus backend.
func (d *DesktopNotify) notify(ctx context.Context, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.desktopNotificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "ciallo"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.desktopNotificationID = id
	d.mu.Unlock()
	return nil
}

// dismiss closes the current desktop notification ID when present.
func (d *DesktopNotify) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.desktopNotificationID
	d.desktopNotificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (d *DesktopNotify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *DesktopNotify) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	go func() {
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := emitCue(kind, d.cfg); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

// log emits debug-only indicator failures to the runtime logger.
func (d *DesktopNotify) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
