package queue

import (
	"encoding/json"
	"strings"
)

// Metadata is the JSON document stored alongside each item. Acquisition
// fills the source fields; the prepare stage fills the publish fields.
type Metadata struct {
	Caption   string `json:"caption,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`

	DuplicateOf       int64 `json:"duplicate_of,omitempty"`
	DuplicateDistance int   `json:"duplicate_distance,omitempty"`
}

// MetadataFromJSON decodes stored metadata, returning an empty value for
// blank or malformed input.
func MetadataFromJSON(data string) Metadata {
	var meta Metadata
	if strings.TrimSpace(data) == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(data), &meta)
	return meta
}

// JSON encodes the metadata for storage.
func (m Metadata) JSON() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Prepared reports whether publish metadata has been generated.
func (m Metadata) Prepared() bool {
	return strings.TrimSpace(m.Title) != ""
}

// Metadata decodes the item's metadata document.
func (i Item) Metadata() Metadata {
	return MetadataFromJSON(i.MetadataJSON)
}

// SetMetadata replaces the item's metadata document.
func (i *Item) SetMetadata(meta Metadata) {
	i.MetadataJSON = meta.JSON()
}
