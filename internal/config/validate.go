package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validatePublishing(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.FingerprintThreshold < 0 || c.Pipeline.FingerprintThreshold > FingerprintBits {
		return fmt.Errorf("pipeline.fingerprint_threshold must be between 0 and %d", FingerprintBits)
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.max_retries":      c.Pipeline.MaxRetries,
		"pipeline.max_concurrency":  c.Pipeline.MaxConcurrency,
		"pipeline.item_timeout":     c.Pipeline.ItemTimeout,
		"pipeline.posts_per_target": c.Pipeline.PostsPerTarget,
	}); err != nil {
		return err
	}
	if c.Pipeline.RetryBackoff < 0 {
		return errors.New("pipeline.retry_backoff must be >= 0")
	}
	if c.Pipeline.RetryBackoffMax < c.Pipeline.RetryBackoff {
		return errors.New("pipeline.retry_backoff_max must be >= pipeline.retry_backoff")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	if c.Schedule.WatchInbox && c.Schedule.WatchDebounce < 1 {
		return errors.New("schedule.watch_debounce must be at least 1 second when schedule.watch_inbox is true")
	}
	if !c.Schedule.Enabled {
		return nil
	}
	if len(c.Schedule.Times) == 0 {
		return errors.New("schedule.times must list at least one HH:MM value when schedule.enabled is true")
	}
	for _, value := range c.Schedule.Times {
		if _, _, err := ParseClock(value); err != nil {
			return fmt.Errorf("schedule.times: %w", err)
		}
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.Width <= 0 || c.Transform.Height <= 0 {
		return errors.New("transform.width and transform.height must be positive")
	}
	if c.Transform.FrameOffset < 0 {
		return errors.New("transform.frame_offset must be >= 0")
	}
	return nil
}

func (c *Config) validatePublishing() error {
	return ensurePositiveMap(map[string]int{
		"publishing.breaker_failures": c.Publishing.BreakerFailures,
		"publishing.breaker_timeout":  c.Publishing.BreakerTimeout,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if (c.Notifications.TelegramToken == "") != (c.Notifications.TelegramChatID == "") {
		return errors.New("notifications.telegram_token and notifications.telegram_chat_id must be set together")
	}
	return nil
}

// ParseClock parses an HH:MM schedule entry.
func ParseClock(value string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
