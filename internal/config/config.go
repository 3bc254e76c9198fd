package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	InboxDir   string `toml:"inbox_dir"`
	StagingDir string `toml:"staging_dir"`
	OutboxDir  string `toml:"outbox_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Pipeline contains the knobs shared by every stage run.
type Pipeline struct {
	FingerprintThreshold int `toml:"fingerprint_threshold"`
	MaxRetries           int `toml:"max_retries"`
	MaxConcurrency       int `toml:"max_concurrency"`
	ItemTimeout          int `toml:"item_timeout"`
	RetryBackoff         int `toml:"retry_backoff"`
	RetryBackoffMax      int `toml:"retry_backoff_max"`
	PostsPerTarget       int `toml:"posts_per_target"`
}

// Schedule controls when the daemon triggers pipeline runs.
type Schedule struct {
	Enabled  bool     `toml:"enabled"`
	Times    []string `toml:"times"`
	Timezone string   `toml:"timezone"`
	// WatchInbox triggers a run when media lands in the inbox, after
	// WatchDebounce seconds without further changes.
	WatchInbox    bool `toml:"watch_inbox"`
	WatchDebounce int  `toml:"watch_debounce"`
}

// Transform contains configuration for the ffmpeg transform engine.
type Transform struct {
	FFmpegBinary string  `toml:"ffmpeg_binary"`
	Width        int     `toml:"width"`
	Height       int     `toml:"height"`
	FrameOffset  float64 `toml:"frame_offset"`

	CreditOverlay bool   `toml:"credit_overlay"`
	SubscribeText string `toml:"subscribe_text"`
	FontFile      string `toml:"font_file"`
	BrandedIntro  string `toml:"branded_intro"`
	BrandedOutro  string `toml:"branded_outro"`
}

// Publishing contains configuration for the publication target.
type Publishing struct {
	ChannelTitle    string `toml:"channel_title"`
	BreakerFailures int    `toml:"breaker_failures"`
	BreakerTimeout  int    `toml:"breaker_timeout"`
}

// Notifications contains configuration for ntfy and Telegram delivery.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
	TelegramAPIURL string `toml:"telegram_api_url"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelpipe.
//
// Configuration sections by subsystem:
//   - Paths: data, inbox, staging, outbox and log directories plus the API bind
//   - Pipeline: dedup threshold, retry policy, concurrency and timeouts
//   - Schedule: cron trigger times and timezone
//   - Transform: ffmpeg binary and output geometry
//   - Publishing: channel branding and circuit breaker
//   - Notifications: ntfy and Telegram approval previews
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Schedule      Schedule      `toml:"schedule"`
	Transform     Transform     `toml:"transform"`
	Publishing    Publishing    `toml:"publishing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reelpipe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.InboxDir, c.Paths.StagingDir, c.Paths.OutboxDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite state database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "reelpipe.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reelpiped.lock")
}

// ItemTimeout returns the hard per-item collaborator timeout.
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Pipeline.ItemTimeout) * time.Second
}

// RetryBackoff returns the initial delay before a failed item is retried.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Pipeline.RetryBackoff) * time.Second
}

// RetryBackoffMax caps the exponential retry delay.
func (c *Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.Pipeline.RetryBackoffMax) * time.Second
}

// NotificationTimeout returns the HTTP timeout for notification delivery.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// BreakerTimeout returns how long the publish breaker stays open.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Publishing.BreakerTimeout) * time.Second
}

// WatchDebounce returns the quiet period before an inbox change triggers a run.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Schedule.WatchDebounce) * time.Second
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
