// Package notifications delivers pipeline events to humans.
//
// Approval previews, publish results, item failures and run summaries are
// formatted once and sent through ntfy, a Telegram bot chat, or both. With
// nothing configured the service degrades to a no-op. Pipeline code depends
// only on the Service interface.
package notifications
