package preparation

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	titleLimit       = 90
	descriptionLimit = 4900
	captionLimit     = 200
	maxKeywords      = 5
	titleKeywords    = 3
	maxTags          = 15
)

var commonWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "have": {}, "will": {}, "from": {},
	"they": {}, "know": {}, "want": {}, "been": {}, "good": {}, "much": {},
	"some": {}, "time": {}, "very": {}, "when": {}, "come": {}, "here": {},
	"just": {}, "like": {}, "long": {}, "make": {}, "many": {}, "over": {},
	"such": {}, "take": {}, "than": {}, "them": {}, "well": {}, "were": {},
}

var baseTags = []string{"shorts", "viral", "trending", "instagram", "repost", "creative", "viral video"}

var topicTags = []struct {
	tag   string
	words []string
}{
	{"funny", []string{"funny", "comedy", "joke"}},
	{"dance", []string{"dance", "dancing", "music"}},
	{"cooking", []string{"cooking", "food", "recipe"}},
	{"fashion", []string{"fashion", "style", "outfit"}},
	{"travel", []string{"travel", "vacation", "trip"}},
}

// Source is the acquisition context publish metadata is derived from.
type Source struct {
	Creator   string
	Caption   string
	SourceURL string
}

// Builder generates titles, descriptions and tags for publication.
type Builder struct {
	ChannelTitle string
	// Schedule is a human readable description of upload times, appended to
	// the description when set.
	Schedule string
}

// NewBuilder constructs a metadata builder.
func NewBuilder(channelTitle, schedule string) *Builder {
	return &Builder{
		ChannelTitle: strings.TrimSpace(channelTitle),
		Schedule:     strings.TrimSpace(schedule),
	}
}

// Keywords extracts up to five meaningful caption words, Title-cased, in
// caption order.
func (b *Builder) Keywords(caption string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, strings.ToLower(caption))

	// cases.Caser is stateful and must not be shared across goroutines.
	caser := cases.Title(language.Und)
	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if len(keywords) >= maxKeywords {
			break
		}
		if len([]rune(word)) <= 3 {
			continue
		}
		if _, common := commonWords[word]; common {
			continue
		}
		keywords = append(keywords, caser.String(word))
	}
	return keywords
}

// Title builds "@creator - Kw1 Kw2 Kw3", falling back to a generic suffix
// when the caption yields no keywords.
func (b *Builder) Title(src Source) string {
	base := "@" + strings.TrimPrefix(strings.TrimSpace(src.Creator), "@")
	keywords := b.Keywords(src.Caption)
	var title string
	if len(keywords) > 0 {
		if len(keywords) > titleKeywords {
			keywords = keywords[:titleKeywords]
		}
		title = fmt.Sprintf("%s - %s", base, strings.Join(keywords, " "))
	} else {
		title = base + " - Amazing Content"
	}
	return truncate(title, titleLimit)
}

// Description builds the long-form publish description with credit, the
// original caption when short, hashtags and channel branding.
func (b *Builder) Description(src Source) string {
	creator := strings.TrimPrefix(strings.TrimSpace(src.Creator), "@")
	parts := []string{
		"🎬 Original Creator: @" + creator,
		"🔗 Original Post: " + strings.TrimSpace(src.SourceURL),
		"",
		"📝 About this video:",
		"This content was shared from a public Instagram account and is",
		"available for public viewing. All credits go to the original creator.",
	}
	if caption := strings.TrimSpace(src.Caption); caption != "" && len([]rune(caption)) < captionLimit {
		parts = append(parts, "", "📝 Original caption: "+caption)
	}
	parts = append(parts,
		"",
		"🎯 Follow for more viral content!",
		"👍 Like if you enjoyed this video!",
		"🔔 Subscribe for daily uploads!",
		"",
		"#Shorts #Viral #Instagram #Trending #Content",
	)
	if b.ChannelTitle != "" {
		parts = append(parts, "", "📺 Channel: "+b.ChannelTitle, "🎬 Curated viral content from Instagram")
	}
	if b.Schedule != "" {
		parts = append(parts, "⚡ Daily uploads at "+b.Schedule)
	}
	return truncate(strings.Join(parts, "\n"), descriptionLimit)
}

// Tags returns the creator handle, the generic reach tags and topic tags
// detected in the caption, capped at fifteen.
func (b *Builder) Tags(src Source) []string {
	tags := []string{"@" + strings.TrimPrefix(strings.TrimSpace(src.Creator), "@")}
	tags = append(tags, baseTags...)
	caption := strings.ToLower(src.Caption)
	for _, topic := range topicTags {
		for _, word := range topic.words {
			if strings.Contains(caption, word) {
				tags = append(tags, topic.tag)
				break
			}
		}
	}
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
