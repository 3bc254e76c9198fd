package config

const (
	defaultDataDir              = "~/.local/share/reelpipe"
	defaultInboxDir             = "~/.local/share/reelpipe/inbox"
	defaultStagingDir           = "~/.local/share/reelpipe/staging"
	defaultOutboxDir            = "~/.local/share/reelpipe/outbox"
	defaultLogDir               = "~/.local/share/reelpipe/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultFingerprintThreshold = 10
	defaultMaxRetries           = 3
	defaultMaxConcurrency       = 3
	defaultItemTimeout          = 300
	defaultRetryBackoff         = 5
	defaultRetryBackoffMax      = 300
	defaultPostsPerTarget       = 5
	defaultTimezone             = "Asia/Karachi"
	defaultWatchDebounce        = 30
	defaultFFmpegBinary         = "ffmpeg"
	defaultWidth                = 1080
	defaultHeight               = 1920
	defaultFrameOffset          = 1.0
	defaultSubscribeText        = "Subscribe for more!"
	defaultChannelTitle         = "Reelpipe Shorts"
	defaultBreakerFailures      = 5
	defaultBreakerTimeout       = 60
	defaultRequestTimeout       = 10
	defaultTelegramAPIURL       = "https://api.telegram.org"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// FingerprintBits is the width of the perceptual hash.
	FingerprintBits = 64
)

var defaultScheduleTimes = []string{"08:00", "12:00", "16:00"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	times := make([]string, len(defaultScheduleTimes))
	copy(times, defaultScheduleTimes)
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			InboxDir:   defaultInboxDir,
			StagingDir: defaultStagingDir,
			OutboxDir:  defaultOutboxDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Pipeline: Pipeline{
			FingerprintThreshold: defaultFingerprintThreshold,
			MaxRetries:           defaultMaxRetries,
			MaxConcurrency:       defaultMaxConcurrency,
			ItemTimeout:          defaultItemTimeout,
			RetryBackoff:         defaultRetryBackoff,
			RetryBackoffMax:      defaultRetryBackoffMax,
			PostsPerTarget:       defaultPostsPerTarget,
		},
		Schedule: Schedule{
			Enabled:       true,
			Times:         times,
			Timezone:      defaultTimezone,
			WatchDebounce: defaultWatchDebounce,
		},
		Transform: Transform{
			FFmpegBinary: defaultFFmpegBinary,
			Width:        defaultWidth,
			Height:       defaultHeight,
			FrameOffset:  defaultFrameOffset,

			CreditOverlay: true,
			SubscribeText: defaultSubscribeText,
		},
		Publishing: Publishing{
			ChannelTitle:    defaultChannelTitle,
			BreakerFailures: defaultBreakerFailures,
			BreakerTimeout:  defaultBreakerTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			TelegramAPIURL: defaultTelegramAPIURL,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
