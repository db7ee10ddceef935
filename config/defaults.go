package config

const (
	defaultDurationSeconds = 30
	defaultFrameRate       = 72
	defaultUploadPath      = "/upload"
	defaultStartDistance   = 0.15
	defaultAcceptDistance  = 0.05
	defaultShrinkMillis    = 200
	defaultCollectorBind   = "127.0.0.1:8088"
	defaultCollectorURL    = "http://127.0.0.1:8088"
	defaultDataDir         = "~/.local/share/handcap/data"
	defaultMaxUploadMiB    = 64
	defaultResampleHz      = 90
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultFont            = "archivo-black-v10-latin-regular.woff"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Capture: Capture{
			DurationSeconds: defaultDurationSeconds,
			FrameRate:       defaultFrameRate,
			UploadURL:       defaultUploadPath,
		},
		Trigger: Trigger{
			StartDistance:  defaultStartDistance,
			AcceptDistance: defaultAcceptDistance,
			ShrinkMillis:   defaultShrinkMillis,
			Offset:         []float64{0.05, -0.1, -0.5},
		},
		Collector: Collector{
			Bind:         defaultCollectorBind,
			URL:          defaultCollectorURL,
			DataDir:      defaultDataDir,
			MaxUploadMiB: defaultMaxUploadMiB,
		},
		Dataset: Dataset{
			ResampleHz: defaultResampleHz,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Assets: Assets{
			Preload: []string{defaultFont},
		},
	}
}
