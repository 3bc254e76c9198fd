package logs

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
)

// Filter selects daemon log lines. The zero value matches everything.
type Filter struct {
	MinLevel slog.Leveler
	ItemID   int64
	Stage    string
}

type record struct {
	Level  string          `json:"level"`
	ItemID json.RawMessage `json:"item_id"`
	Stage  string          `json:"stage"`
}

// Match reports whether line passes the filter. Lines that are not JSON
// records pass only when no field filter is set.
func (f Filter) Match(line string) bool {
	if f.MinLevel == nil && f.ItemID == 0 && f.Stage == "" {
		return true
	}
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return false
	}
	if f.MinLevel != nil && rec.Level != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(rec.Level)); err == nil && level < f.MinLevel.Level() {
			return false
		}
	}
	if f.ItemID != 0 {
		raw := strings.Trim(string(rec.ItemID), `"`)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id != f.ItemID {
			return false
		}
	}
	if f.Stage != "" && !strings.EqualFold(rec.Stage, f.Stage) {
		return false
	}
	return true
}
