package notifications

import (
	"context"
	"net/http"
	"net/url"
)

// telegramService posts approval previews to a chat through the bot API.
type telegramService struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

func (t *telegramService) Publish(ctx context.Context, event Event, payload Payload) error {
	if t == nil || t.client == nil {
		return nil
	}
	msg, ok := formatMessage(event, payload)
	if !ok {
		return nil
	}

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", msg.title+"\n\n"+msg.body)
	if msg.priority == "low" {
		form.Set("disable_notification", "true")
	}
	return delivery{
		channel:     "telegram",
		endpoint:    t.baseURL + "/bot" + t.token + "/sendMessage",
		contentType: "application/x-www-form-urlencoded",
		body:        form.Encode(),
		okStatus:    func(code int) bool { return code == http.StatusOK },
		secret:      t.token,
	}.send(ctx, t.client)
}
