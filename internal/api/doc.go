// Package api defines the wire-format types and converters for the HTTP API
// and the CLI's JSON output. It translates internal queue and workflow models
// into transport-friendly DTOs so consumers do not couple to internal types.
//
// DTOs use camelCase JSON tags. Lifecycle stages and approval decisions are
// exposed as their lowercase string values. Timestamps use RFC3339 with
// milliseconds in UTC.
//
// ItemService wraps the store for read-only queries: listing items by stage,
// describing one item with its approval request, counting items per stage
// and approvals per decision, and listing acquisition targets.
package api
