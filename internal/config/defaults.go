package config

// Default returns the canonical runtime configuration used when no file is
// present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{Input: "default", Fallback: "default"},
		Wake: WakeConfig{
			ThLow:               0.02,
			ThHigh:              0.04,
			ConfirmWindowMS:     150,
			ConfirmFramesNeeded: 2,
		},
		VAD:      VADConfig{SilenceRMS: 300, SilenceFrames: 8},
		Pipeline: PipelineConfig{TickHz: 50},
		Realtime: RealtimeConfig{
			TickMS:       500,
			MAEThreshold: 5.0,
			YBucketPx:    8,
		},
		Cache:   CacheConfig{L1Capacity: 512, L1TTLMin: 10, L2TTLDays: 7},
		History: HistoryConfig{FlushMS: 300, RetentionDays: 30},
		Retry: RetryConfig{
			Retry429MS: []int{1000, 2000, 4000},
			Retry5xxMS: []int{500, 1000},
		},
		RateLimit: RateLimitConfig{MinIntervalMS: 100},
		Translate: TranslateConfig{
			Model:         "deepseek-chat",
			DefaultSource: "auto",
			DefaultTarget: "en",
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "desktop",
			DesktopAppName: "ciallo",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		OCRWorker: OCRWorkerConfig{
			SocketPath:           "",
			ProbeIntervalMS:      30000,
			ProbeDeadlineMS:      500,
			RestartAfterFailures: 3,
		},
		UIServer: UIServerConfig{ListenAddr: "127.0.0.1:47811"},
	}
}
