package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Audio.Input) == "" {
		return nil, fmt.Errorf("audio.input must not be empty")
	}
	if strings.TrimSpace(cfg.Audio.Fallback) == "" {
		return nil, fmt.Errorf("audio.fallback must not be empty")
	}

	if cfg.Wake.ThLow <= 0 {
		return nil, fmt.Errorf("wake.th_low must be > 0")
	}
	if cfg.Wake.ThHigh <= cfg.Wake.ThLow {
		return nil, fmt.Errorf("wake.th_high must be > wake.th_low")
	}
	if cfg.Wake.ThHigh > 1 {
		return nil, fmt.Errorf("wake.th_high must be <= 1")
	}
	if cfg.Wake.ConfirmWindowMS <= 0 {
		return nil, fmt.Errorf("wake.confirm_window_ms must be > 0")
	}
	if cfg.Wake.ConfirmFramesNeeded <= 0 {
		return nil, fmt.Errorf("wake.confirm_frames_needed must be > 0")
	}

	if cfg.VAD.SilenceRMS < 0 {
		return nil, fmt.Errorf("vad.silence_rms must be >= 0")
	}
	if cfg.VAD.SilenceFrames <= 0 {
		return nil, fmt.Errorf("vad.silence_frames must be > 0")
	}

	if cfg.Pipeline.TickHz <= 0 {
		return nil, fmt.Errorf("pipeline.tick_hz must be > 0")
	}

	if cfg.Realtime.TickMS <= 0 {
		return nil, fmt.Errorf("realtime.tick_ms must be > 0")
	}
	if cfg.Realtime.MAEThreshold < 0 {
		return nil, fmt.Errorf("realtime.mae_threshold must be >= 0")
	}
	if cfg.Realtime.YBucketPx <= 0 {
		return nil, fmt.Errorf("realtime.y_bucket_px must be > 0")
	}

	if cfg.Cache.L1Capacity <= 0 {
		return nil, fmt.Errorf("cache.l1_capacity must be > 0")
	}
	if cfg.Cache.L1TTLMin <= 0 {
		return nil, fmt.Errorf("cache.l1_ttl_min must be > 0")
	}
	if cfg.Cache.L2TTLDays <= 0 {
		return nil, fmt.Errorf("cache.l2_ttl_days must be > 0")
	}

	if cfg.History.FlushMS <= 0 {
		return nil, fmt.Errorf("history.flush_ms must be > 0")
	}

	if len(cfg.Retry.Retry429MS) == 0 {
		return nil, fmt.Errorf("retry.429 must not be empty")
	}
	for _, ms := range cfg.Retry.Retry429MS {
		if ms <= 0 {
			return nil, fmt.Errorf("retry.429 entries must be > 0")
		}
	}
	if len(cfg.Retry.Retry5xxMS) == 0 {
		return nil, fmt.Errorf("retry.5xx must not be empty")
	}
	for _, ms := range cfg.Retry.Retry5xxMS {
		if ms <= 0 {
			return nil, fmt.Errorf("retry.5xx entries must be > 0")
		}
	}

	if cfg.RateLimit.MinIntervalMS < 0 {
		return nil, fmt.Errorf("rate_limit.min_interval_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.Translate.Model) == "" {
		return nil, fmt.Errorf("translate.model must not be empty")
	}
	if strings.TrimSpace(cfg.Translate.DefaultSource) == "" {
		return nil, fmt.Errorf("translate.default_source must not be empty")
	}
	if strings.TrimSpace(cfg.Translate.DefaultTarget) == "" {
		return nil, fmt.Errorf("translate.default_target must not be empty")
	}

	if cfg.Indicator.Enable {
		backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
		if backend == "" {
			return nil, fmt.Errorf("indicator.backend must not be empty")
		}
		if backend != "desktop" {
			return nil, fmt.Errorf("indicator.backend must be: desktop")
		}
		if strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
			return nil, fmt.Errorf("indicator.desktop_app_name must not be empty")
		}
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if len(cfg.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("clipboard_cmd must not be empty")
	}

	if cfg.OCRWorker.ProbeIntervalMS <= 0 {
		return nil, fmt.Errorf("ocr_worker.probe_interval_ms must be > 0")
	}
	if cfg.OCRWorker.ProbeDeadlineMS <= 0 {
		return nil, fmt.Errorf("ocr_worker.probe_deadline_ms must be > 0")
	}
	if cfg.OCRWorker.ProbeDeadlineMS >= cfg.OCRWorker.ProbeIntervalMS {
		warnings = append(warnings, Warning{Message: "ocr_worker.probe_deadline_ms should be smaller than ocr_worker.probe_interval_ms"})
	}
	if cfg.OCRWorker.RestartAfterFailures <= 0 {
		return nil, fmt.Errorf("ocr_worker.restart_after_failures must be > 0")
	}

	if strings.TrimSpace(cfg.UIServer.ListenAddr) == "" {
		return nil, fmt.Errorf("ui_server.listen_addr must not be empty")
	}

	return warnings, nil
}
