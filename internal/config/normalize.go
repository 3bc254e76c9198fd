package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSchedule()
	if err := c.normalizeTransform(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.inbox_dir", &c.Paths.InboxDir},
		{"paths.staging_dir", &c.Paths.StagingDir},
		{"paths.outbox_dir", &c.Paths.OutboxDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("REELPIPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeSchedule() {
	times := make([]string, 0, len(c.Schedule.Times))
	for _, value := range c.Schedule.Times {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			times = append(times, trimmed)
		}
	}
	c.Schedule.Times = times
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
}

func (c *Config) normalizeTransform() error {
	c.Transform.FFmpegBinary = strings.TrimSpace(c.Transform.FFmpegBinary)
	if c.Transform.FFmpegBinary == "" {
		c.Transform.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transform.SubscribeText = strings.TrimSpace(c.Transform.SubscribeText)
	fields := []struct {
		key   string
		value *string
	}{
		{"transform.font_file", &c.Transform.FontFile},
		{"transform.branded_intro", &c.Transform.BrandedIntro},
		{"transform.branded_outro", &c.Transform.BrandedOutro},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = ""
			continue
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.TelegramToken == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Notifications.TelegramToken = value
		}
	}
	if c.Notifications.TelegramChatID == "" {
		if value, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
			c.Notifications.TelegramChatID = value
		}
	}
	c.Notifications.TelegramToken = strings.TrimSpace(c.Notifications.TelegramToken)
	c.Notifications.TelegramChatID = strings.TrimSpace(c.Notifications.TelegramChatID)
	c.Notifications.TelegramAPIURL = strings.TrimRight(strings.TrimSpace(c.Notifications.TelegramAPIURL), "/")
	if c.Notifications.TelegramAPIURL == "" {
		c.Notifications.TelegramAPIURL = defaultTelegramAPIURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
