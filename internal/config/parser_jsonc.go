package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Audio     *jsoncAudio     `json:"audio"`
	Wake      *jsoncWake      `json:"wake"`
	VAD       *jsoncVAD       `json:"vad"`
	Pipeline  *jsoncPipeline  `json:"pipeline"`
	Realtime  *jsoncRealtime  `json:"realtime"`
	Cache     *jsoncCache     `json:"cache"`
	History   *jsoncHistory   `json:"history"`
	Retry     *jsoncRetry     `json:"retry"`
	RateLimit *jsoncRateLimit `json:"rate_limit"`
	Translate *jsoncTranslate `json:"translate"`
	Indicator *jsoncIndicator `json:"indicator"`
	OCRWorker *jsoncOCRWorker `json:"ocr_worker"`
	UIServer  *jsoncUIServer  `json:"ui_server"`

	ClipboardCmd *string `json:"clipboard_cmd"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncWake struct {
	ThLow               *float64 `json:"th_low"`
	ThHigh              *float64 `json:"th_high"`
	ConfirmWindowMS     *int     `json:"confirm_window_ms"`
	ConfirmFramesNeeded *int     `json:"confirm_frames_needed"`
}

type jsoncVAD struct {
	SilenceRMS    *float64 `json:"silence_rms"`
	SilenceFrames *int     `json:"silence_frames"`
}

type jsoncPipeline struct {
	TickHz *int `json:"tick_hz"`
}

type jsoncRealtime struct {
	TickMS       *int     `json:"tick_ms"`
	MAEThreshold *float64 `json:"mae_threshold"`
	YBucketPx    *int     `json:"y_bucket_px"`
}

type jsoncCache struct {
	L1Capacity *int `json:"l1_capacity"`
	L1TTLMin   *int `json:"l1_ttl_min"`
	L2TTLDays  *int `json:"l2_ttl_days"`
}

type jsoncHistory struct {
	FlushMS       *int `json:"flush_ms"`
	RetentionDays *int `json:"retention_days"`
}

type jsoncRetry struct {
	Retry429MS []int `json:"429"`
	Retry5xxMS []int `json:"5xx"`
}

type jsoncRateLimit struct {
	MinIntervalMS *int `json:"min_interval_ms"`
}

type jsoncTranslate struct {
	Model         *string `json:"model"`
	DefaultSource *string `json:"default_source"`
	DefaultTarget *string `json:"default_target"`
}

type jsoncIndicator struct {
	Enable           *bool   `json:"enable"`
	Backend          *string `json:"backend"`
	DesktopAppName   *string `json:"desktop_app_name"`
	SoundEnable      *bool   `json:"sound_enable"`
	SoundWakeFile    *string `json:"sound_wake_file"`
	SoundConfirmFile *string `json:"sound_confirm_file"`
	SoundRejectFile  *string `json:"sound_reject_file"`
	SoundCancelFile  *string `json:"sound_cancel_file"`
	ErrorTimeoutMS   *int    `json:"error_timeout_ms"`
}

type jsoncOCRWorker struct {
	SocketPath           *string `json:"socket_path"`
	ProbeIntervalMS      *int    `json:"probe_interval_ms"`
	ProbeDeadlineMS      *int    `json:"probe_deadline_ms"`
	RestartAfterFailures *int    `json:"restart_after_failures"`
}

type jsoncUIServer struct {
	ListenAddr *string `json:"listen_addr"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Wake != nil {
		if payload.Wake.ThLow != nil {
			cfg.Wake.ThLow = *payload.Wake.ThLow
		}
		if payload.Wake.ThHigh != nil {
			cfg.Wake.ThHigh = *payload.Wake.ThHigh
		}
		if payload.Wake.ConfirmWindowMS != nil {
			cfg.Wake.ConfirmWindowMS = *payload.Wake.ConfirmWindowMS
		}
		if payload.Wake.ConfirmFramesNeeded != nil {
			cfg.Wake.ConfirmFramesNeeded = *payload.Wake.ConfirmFramesNeeded
		}
	}

	if payload.VAD != nil {
		if payload.VAD.SilenceRMS != nil {
			cfg.VAD.SilenceRMS = *payload.VAD.SilenceRMS
		}
		if payload.VAD.SilenceFrames != nil {
			cfg.VAD.SilenceFrames = *payload.VAD.SilenceFrames
		}
	}

	if payload.Pipeline != nil && payload.Pipeline.TickHz != nil {
		cfg.Pipeline.TickHz = *payload.Pipeline.TickHz
	}

	if payload.Realtime != nil {
		if payload.Realtime.TickMS != nil {
			cfg.Realtime.TickMS = *payload.Realtime.TickMS
		}
		if payload.Realtime.MAEThreshold != nil {
			cfg.Realtime.MAEThreshold = *payload.Realtime.MAEThreshold
		}
		if payload.Realtime.YBucketPx != nil {
			cfg.Realtime.YBucketPx = *payload.Realtime.YBucketPx
		}
	}

	if payload.Cache != nil {
		if payload.Cache.L1Capacity != nil {
			cfg.Cache.L1Capacity = *payload.Cache.L1Capacity
		}
		if payload.Cache.L1TTLMin != nil {
			cfg.Cache.L1TTLMin = *payload.Cache.L1TTLMin
		}
		if payload.Cache.L2TTLDays != nil {
			cfg.Cache.L2TTLDays = *payload.Cache.L2TTLDays
		}
	}

	if payload.History != nil {
		if payload.History.FlushMS != nil {
			cfg.History.FlushMS = *payload.History.FlushMS
		}
		if payload.History.RetentionDays != nil {
			cfg.History.RetentionDays = *payload.History.RetentionDays
		}
	}

	if payload.Retry != nil {
		if payload.Retry.Retry429MS != nil {
			cfg.Retry.Retry429MS = payload.Retry.Retry429MS
		}
		if payload.Retry.Retry5xxMS != nil {
			cfg.Retry.Retry5xxMS = payload.Retry.Retry5xxMS
		}
	}

	if payload.RateLimit != nil && payload.RateLimit.MinIntervalMS != nil {
		cfg.RateLimit.MinIntervalMS = *payload.RateLimit.MinIntervalMS
	}

	if payload.Translate != nil {
		if payload.Translate.Model != nil {
			cfg.Translate.Model = strings.TrimSpace(*payload.Translate.Model)
		}
		if payload.Translate.DefaultSource != nil {
			cfg.Translate.DefaultSource = strings.TrimSpace(*payload.Translate.DefaultSource)
		}
		if payload.Translate.DefaultTarget != nil {
			cfg.Translate.DefaultTarget = strings.TrimSpace(*payload.Translate.DefaultTarget)
		}
	}

	if payload.Indicator != nil {
		if payload.Indicator.Enable != nil {
			cfg.Indicator.Enable = *payload.Indicator.Enable
		}
		if payload.Indicator.Backend != nil {
			cfg.Indicator.Backend = strings.TrimSpace(*payload.Indicator.Backend)
		}
		if payload.Indicator.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*payload.Indicator.DesktopAppName)
		}
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		if payload.Indicator.SoundWakeFile != nil {
			cfg.Indicator.SoundWakeFile = *payload.Indicator.SoundWakeFile
		}
		if payload.Indicator.SoundConfirmFile != nil {
			cfg.Indicator.SoundConfirmFile = *payload.Indicator.SoundConfirmFile
		}
		if payload.Indicator.SoundRejectFile != nil {
			cfg.Indicator.SoundRejectFile = *payload.Indicator.SoundRejectFile
		}
		if payload.Indicator.SoundCancelFile != nil {
			cfg.Indicator.SoundCancelFile = *payload.Indicator.SoundCancelFile
		}
		if payload.Indicator.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *payload.Indicator.ErrorTimeoutMS
		}
	}

	if payload.OCRWorker != nil {
		if payload.OCRWorker.SocketPath != nil {
			cfg.OCRWorker.SocketPath = *payload.OCRWorker.SocketPath
		}
		if payload.OCRWorker.ProbeIntervalMS != nil {
			cfg.OCRWorker.ProbeIntervalMS = *payload.OCRWorker.ProbeIntervalMS
		}
		if payload.OCRWorker.ProbeDeadlineMS != nil {
			cfg.OCRWorker.ProbeDeadlineMS = *payload.OCRWorker.ProbeDeadlineMS
		}
		if payload.OCRWorker.RestartAfterFailures != nil {
			cfg.OCRWorker.RestartAfterFailures = *payload.OCRWorker.RestartAfterFailures
		}
	}

	if payload.UIServer != nil && payload.UIServer.ListenAddr != nil {
		cfg.UIServer.ListenAddr = *payload.UIServer.ListenAddr
	}

	if payload.ClipboardCmd != nil {
		raw := *payload.ClipboardCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return fmt.Errorf("invalid clipboard_cmd: %w", err)
		}
		cfg.Clipboard = CommandConfig{Raw: raw, Argv: argv}
	}

	return nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		line, col := offsetToLineCol(content, int64(len(content)))
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
