package notifications

import (
	"context"
	"net/http"
	"strings"
)

// ntfyService posts plain-text messages to an ntfy topic URL, with title,
// tags and priority carried in headers.
type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	msg, ok := formatMessage(event, payload)
	if !ok {
		return nil
	}
	priority := msg.priority
	if priority == "default" {
		priority = ""
	}
	return delivery{
		channel:     "ntfy",
		endpoint:    n.endpoint,
		contentType: "text/plain; charset=utf-8",
		body:        msg.body,
		headers: map[string]string{
			"Title":    msg.title,
			"Tags":     strings.Join(msg.tags, ","),
			"Priority": priority,
		},
	}.send(ctx, n.client)
}
