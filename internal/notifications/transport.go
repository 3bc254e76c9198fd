package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// delivery is one outbound HTTP call to a notification channel.
type delivery struct {
	channel     string
	endpoint    string
	contentType string
	body        string
	headers     map[string]string
	okStatus    func(int) bool
	// secret is scrubbed from transport errors when the endpoint embeds it.
	secret string
}

func (d delivery) send(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(d.body))
	if err != nil {
		return fmt.Errorf("build %s request: %s", d.channel, redact(err.Error(), d.secret))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", d.contentType)
	for key, value := range d.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s notification: %s", d.channel, redact(err.Error(), d.secret))
	}
	defer resp.Body.Close()

	ok := d.okStatus
	if ok == nil {
		ok = func(code int) bool { return code < 300 }
	}
	if !ok(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned %d: %s", d.channel, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func redact(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, "***")
}
