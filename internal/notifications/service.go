package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reelpipe/internal/config"
)

const userAgent = "Reelpipe-Go/0.1.0"

// Event identifies a pipeline milestone worth telling a human about.
type Event string

const (
	EventApprovalRequested Event = "approval_requested"
	EventItemPublished     Event = "item_published"
	EventItemFailed        Event = "item_failed"
	EventRunCompleted      Event = "run_completed"
	EventTestNotification  Event = "test"
)

// Payload carries event-specific fields keyed by name.
type Payload map[string]any

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	case time.Duration:
		return v.Round(time.Second).String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured notifiers. With neither ntfy nor
// Telegram configured a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	var services []Service
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, &ntfyService{endpoint: topic, client: client})
	}
	token := strings.TrimSpace(cfg.Notifications.TelegramToken)
	chatID := strings.TrimSpace(cfg.Notifications.TelegramChatID)
	if token != "" && chatID != "" {
		services = append(services, &telegramService{
			baseURL: strings.TrimRight(cfg.Notifications.TelegramAPIURL, "/"),
			token:   token,
			chatID:  chatID,
			client:  client,
		})
	}

	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return Multi(services...)
	}
}

// Multi fans an event out to every service. All services are attempted;
// failures are joined.
func Multi(services ...Service) Service {
	return multiService(services)
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if svc == nil {
			continue
		}
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a service that drops every event.
func NewNoop() Service {
	return noopService{}
}
