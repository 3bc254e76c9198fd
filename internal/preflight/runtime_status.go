package preflight

import (
	"context"
	"strings"

	"reelpipe/internal/config"
)

// CheckTelegramFromConfig evaluates Telegram status from config and connectivity.
func CheckTelegramFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Telegram"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	token := strings.TrimSpace(cfg.Notifications.TelegramToken)
	chatID := strings.TrimSpace(cfg.Notifications.TelegramChatID)
	if token == "" && chatID == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if token == "" {
		return Result{Name: name, Detail: "Missing bot token"}
	}
	if chatID == "" {
		return Result{Name: name, Detail: "Missing chat id"}
	}
	return CheckTelegram(ctx, cfg.Notifications.TelegramAPIURL, token)
}

// CheckNtfyFromConfig evaluates ntfy status from config and connectivity.
func CheckNtfyFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "ntfy"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckNtfy(ctx, cfg.Notifications.NtfyTopic)
}
