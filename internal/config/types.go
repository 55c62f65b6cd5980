// Package config resolves, parses, validates, and defaults ciallo's runtime
// configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio     AudioConfig
	Wake      WakeConfig
	VAD       VADConfig
	Pipeline  PipelineConfig
	Realtime  RealtimeConfig
	Cache     CacheConfig
	History   HistoryConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Translate TranslateConfig
	Indicator IndicatorConfig
	Clipboard CommandConfig
	OCRWorker OCRWorkerConfig
	UIServer  UIServerConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// WakeConfig tunes the two-stage wake confirmer.
type WakeConfig struct {
	ThLow               float64
	ThHigh              float64
	ConfirmWindowMS     int
	ConfirmFramesNeeded int
}

// VADConfig tunes the energy-gated voice activity detector.
type VADConfig struct {
	SilenceRMS    float64
	SilenceFrames int
}

// PipelineConfig controls the audio processing loop's tick rate.
type PipelineConfig struct {
	TickHz int
}

// RealtimeConfig controls the 500ms screen-translation loop.
type RealtimeConfig struct {
	TickMS       int
	MAEThreshold float64
	YBucketPx    int
}

// CacheConfig controls the two-tier translation cache.
type CacheConfig struct {
	L1Capacity int
	L1TTLMin   int
	L2TTLDays  int
}

// HistoryConfig controls the history batcher's flush policy and its
// background retention sweep.
type HistoryConfig struct {
	FlushMS       int
	RetentionDays int
}

// RetryConfig controls the translation API's retry schedule.
type RetryConfig struct {
	Retry429MS []int
	Retry5xxMS []int
}

// RateLimitConfig controls the translation API's token bucket.
type RateLimitConfig struct {
	MinIntervalMS int
}

// TranslateConfig controls the translation backend model selection.
type TranslateConfig struct {
	Model         string
	DefaultSource string
	DefaultTarget string
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable           bool
	Backend          string
	DesktopAppName   string
	SoundEnable      bool
	SoundWakeFile    string
	SoundConfirmFile string
	SoundRejectFile  string
	SoundCancelFile  string
	ErrorTimeoutMS   int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// OCRWorkerConfig controls the OCR worker process's health probe policy.
type OCRWorkerConfig struct {
	SocketPath           string
	ProbeIntervalMS      int
	ProbeDeadlineMS      int
	RestartAfterFailures int
}

// UIServerConfig controls the local WebSocket UI command/event transport.
type UIServerConfig struct {
	ListenAddr string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
