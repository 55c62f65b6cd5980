package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty audio input", mutate: func(c *Config) { c.Audio.Input = "" }, wantErr: "audio.input"},
		{name: "th_low not positive", mutate: func(c *Config) { c.Wake.ThLow = 0 }, wantErr: "wake.th_low"},
		{name: "th_high below th_low", mutate: func(c *Config) { c.Wake.ThHigh = c.Wake.ThLow }, wantErr: "wake.th_high"},
		{name: "confirm window not positive", mutate: func(c *Config) { c.Wake.ConfirmWindowMS = 0 }, wantErr: "confirm_window_ms"},
		{name: "confirm frames not positive", mutate: func(c *Config) { c.Wake.ConfirmFramesNeeded = 0 }, wantErr: "confirm_frames_needed"},
		{name: "negative silence rms", mutate: func(c *Config) { c.VAD.SilenceRMS = -1 }, wantErr: "vad.silence_rms"},
		{name: "silence frames not positive", mutate: func(c *Config) { c.VAD.SilenceFrames = 0 }, wantErr: "silence_frames"},
		{name: "tick hz not positive", mutate: func(c *Config) { c.Pipeline.TickHz = 0 }, wantErr: "tick_hz"},
		{name: "realtime tick not positive", mutate: func(c *Config) { c.Realtime.TickMS = 0 }, wantErr: "realtime.tick_ms"},
		{name: "negative mae threshold", mutate: func(c *Config) { c.Realtime.MAEThreshold = -1 }, wantErr: "mae_threshold"},
		{name: "y bucket not positive", mutate: func(c *Config) { c.Realtime.YBucketPx = 0 }, wantErr: "y_bucket_px"},
		{name: "l1 capacity not positive", mutate: func(c *Config) { c.Cache.L1Capacity = 0 }, wantErr: "l1_capacity"},
		{name: "l1 ttl not positive", mutate: func(c *Config) { c.Cache.L1TTLMin = 0 }, wantErr: "l1_ttl_min"},
		{name: "l2 ttl not positive", mutate: func(c *Config) { c.Cache.L2TTLDays = 0 }, wantErr: "l2_ttl_days"},
		{name: "history flush not positive", mutate: func(c *Config) { c.History.FlushMS = 0 }, wantErr: "flush_ms"},
		{name: "empty 429 retry schedule", mutate: func(c *Config) { c.Retry.Retry429MS = nil }, wantErr: "retry.429"},
		{name: "empty 5xx retry schedule", mutate: func(c *Config) { c.Retry.Retry5xxMS = nil }, wantErr: "retry.5xx"},
		{name: "negative rate limit", mutate: func(c *Config) { c.RateLimit.MinIntervalMS = -1 }, wantErr: "min_interval_ms"},
		{name: "empty translate model", mutate: func(c *Config) { c.Translate.Model = "" }, wantErr: "translate.model"},
		{name: "empty translate source", mutate: func(c *Config) { c.Translate.DefaultSource = "" }, wantErr: "default_source"},
		{name: "empty translate target", mutate: func(c *Config) { c.Translate.DefaultTarget = "" }, wantErr: "default_target"},
		{name: "invalid indicator backend", mutate: func(c *Config) { c.Indicator.Backend = "hypr" }, wantErr: "indicator.backend"},
		{name: "empty desktop app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "empty clipboard argv", mutate: func(c *Config) { c.Clipboard.Argv = nil }, wantErr: "clipboard_cmd"},
		{name: "probe interval not positive", mutate: func(c *Config) { c.OCRWorker.ProbeIntervalMS = 0 }, wantErr: "probe_interval_ms"},
		{name: "probe deadline not positive", mutate: func(c *Config) { c.OCRWorker.ProbeDeadlineMS = 0 }, wantErr: "probe_deadline_ms"},
		{name: "restart threshold not positive", mutate: func(c *Config) { c.OCRWorker.RestartAfterFailures = 0 }, wantErr: "restart_after_failures"},
		{name: "empty listen addr", mutate: func(c *Config) { c.UIServer.ListenAddr = "" }, wantErr: "listen_addr"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnsWhenProbeDeadlineExceedsInterval(t *testing.T) {
	cfg := Default()
	cfg.OCRWorker.ProbeIntervalMS = 100
	cfg.OCRWorker.ProbeDeadlineMS = 100

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}

func TestValidateSkipsBackendCheckWhenIndicatorDisabled(t *testing.T) {
	cfg := Default()
	cfg.Indicator.Enable = false
	cfg.Indicator.Backend = ""
	cfg.Indicator.DesktopAppName = ""

	_, err := Validate(cfg)
	require.NoError(t, err)
}
