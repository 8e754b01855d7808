package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultTitle is used when a language block has no title.
const DefaultTitle = "Untitled"

// LanguageMetadata is one per-language block of the metadata document.
type LanguageMetadata struct {
	Title           string
	Description     string
	Tags            []string
	Hashtags        string
	YouTubeHashtags string
	TikTokHashtags  string
	VideoFile       string
}

// Metadata describes one video and where it goes.
type Metadata struct {
	VideoFile string
	Platforms []string
	Languages map[string]*LanguageMetadata
}

// ParseMetadata decodes a metadata document. Every top-level object other
// than the reserved keys is a language block.
func ParseMetadata(data []byte) (*Metadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("metadata must be a JSON object")
	}

	md := &Metadata{Languages: make(map[string]*LanguageMetadata)}
	root.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "video_file":
			md.VideoFile = value.String()
		case "platforms":
			for _, p := range value.Array() {
				if s := strings.TrimSpace(p.String()); s != "" {
					md.Platforms = append(md.Platforms, s)
				}
			}
		default:
			if value.IsObject() {
				md.Languages[key.String()] = parseLanguage(value)
			}
		}
		return true
	})
	return md, nil
}

func parseLanguage(v gjson.Result) *LanguageMetadata {
	lm := &LanguageMetadata{
		Title:           v.Get("title").String(),
		Description:     v.Get("description").String(),
		Hashtags:        joinable(v.Get("hashtags")),
		YouTubeHashtags: joinable(v.Get("youtube_hashtags")),
		TikTokHashtags:  joinable(v.Get("tiktok_hashtags")),
		VideoFile:       v.Get("video_file").String(),
	}
	for _, t := range v.Get("tags").Array() {
		lm.Tags = append(lm.Tags, t.String())
	}
	return lm
}

// joinable accepts hashtags either as a string or as a list of strings.
func joinable(v gjson.Result) string {
	if v.IsArray() {
		parts := make([]string, 0, len(v.Array()))
		for _, p := range v.Array() {
			parts = append(parts, p.String())
		}
		return strings.Join(parts, " ")
	}
	return v.String()
}

// Language returns the block for account, or an empty block.
func (m *Metadata) Language(account string) *LanguageMetadata {
	if lm, ok := m.Languages[account]; ok {
		return lm
	}
	return &LanguageMetadata{}
}

// LanguageKeys returns the language block names in sorted order.
func (m *Metadata) LanguageKeys() []string {
	keys := make([]string, 0, len(m.Languages))
	for k := range m.Languages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// VideoFor returns the language override if present, else the default file.
func (m *Metadata) VideoFor(account string) string {
	if lm := m.Language(account); lm.VideoFile != "" {
		return lm.VideoFile
	}
	return m.VideoFile
}

// TitleOrDefault returns the title, or DefaultTitle when empty.
func (lm *LanguageMetadata) TitleOrDefault() string {
	if lm.Title == "" {
		return DefaultTitle
	}
	return lm.Title
}

// YouTubeDescription appends the YouTube hashtags after a blank line.
func (lm *LanguageMetadata) YouTubeDescription() string {
	if lm.YouTubeHashtags == "" {
		return lm.Description
	}
	return strings.TrimSpace(lm.Description + "\n\n" + lm.YouTubeHashtags)
}

// TikTokTitle appends the TikTok hashtags (or the generic hashtags) to the title.
func (lm *LanguageMetadata) TikTokTitle() string {
	tags := lm.TikTokHashtags
	if tags == "" {
		tags = lm.Hashtags
	}
	return strings.TrimSpace(lm.TitleOrDefault() + " " + tags)
}
