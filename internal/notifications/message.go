package notifications

import (
	"fmt"
	"strings"
)

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

const previewDescriptionLimit = 200

func formatMessage(event Event, payload Payload) (message, bool) {
	switch event {
	case EventApprovalRequested:
		var b strings.Builder
		fmt.Fprintf(&b, "🎬 Approval needed for item #%s\n\n", payload.str("itemID"))
		fmt.Fprintf(&b, "📝 Title: %s\n", payload.str("title"))
		if desc := payload.str("description"); desc != "" {
			if runes := []rune(desc); len(runes) > previewDescriptionLimit {
				desc = string(runes[:previewDescriptionLimit]) + "..."
			}
			fmt.Fprintf(&b, "📋 Description: %s\n", desc)
		}
		if tags := payload.str("tags"); tags != "" {
			fmt.Fprintf(&b, "🏷️ Tags: %s\n", tags)
		}
		if target := payload.str("target"); target != "" {
			fmt.Fprintf(&b, "👤 Creator: @%s\n", target)
		}
		if source := payload.str("sourceURL"); source != "" {
			fmt.Fprintf(&b, "🔗 Original post: %s\n", source)
		}
		if fp := payload.str("fingerprint"); fp != "" {
			fmt.Fprintf(&b, "🔑 pHash: %s\n", fp)
		}
		fmt.Fprintf(&b, "\nApprove with: reelpipe approve %s --by <name>", payload.str("itemID"))
		return message{
			title:    "Reelpipe - Approval Needed",
			body:     b.String(),
			tags:     []string{"reelpipe", "approval", "pending"},
			priority: "high",
		}, true
	case EventItemPublished:
		return message{
			title: "Reelpipe - Published",
			body:  fmt.Sprintf("✅ Published #%s: %s (%s)", payload.str("itemID"), payload.str("title"), payload.str("publishedID")),
			tags:  []string{"reelpipe", "publish", "completed"},
		}, true
	case EventItemFailed:
		return message{
			title:    "Reelpipe - Item Failed",
			body:     fmt.Sprintf("❌ Item #%s failed in %s: %s", payload.str("itemID"), payload.str("stage"), payload.str("error")),
			tags:     []string{"reelpipe", "error", "alert"},
			priority: "high",
		}, true
	case EventRunCompleted:
		title := "Reelpipe - Run Complete"
		if payload.str("failed") != "" && payload.str("failed") != "0" {
			title = "Reelpipe - Run Complete (with failures)"
		}
		return message{
			title: title,
			body: fmt.Sprintf("Run %s (%s): %s advanced, %s failed in %s",
				payload.str("runID"), payload.str("trigger"), payload.str("advanced"), payload.str("failed"), payload.str("duration")),
			tags: []string{"reelpipe", "run", "completed"},
		}, true
	case EventTestNotification:
		return message{
			title:    "Reelpipe - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelpipe", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}
