package models

import (
	"fmt"
	"strings"
)

// Sentinel values used when a metadata field could not be extracted.
const (
	Unknown     = "unknown"
	Unspecified = "unspecified"
	Anonymous   = "Anonymous"
)

// Language is a normalized audio or subtitle language.
type Language string

const (
	LangUnknown    Language = "unknown"
	LangNone       Language = "none"
	LangMulti      Language = "multi"
	LangEnglish    Language = "english"
	LangJapanese   Language = "japanese"
	LangSpanish    Language = "spanish"
	LangPortuguese Language = "portuguese"
	LangFrench     Language = "french"
	LangGerman     Language = "german"
	LangItalian    Language = "italian"
	LangChinese    Language = "chinese"
	LangArabic     Language = "arabic"
	LangRussian    Language = "russian"
	LangKorean     Language = "korean"
)

// Known reports whether l carries real information.
func (l Language) Known() bool {
	return l != "" && l != LangUnknown
}

// Display returns a capitalized label, e.g. "English".
func (l Language) Display() string {
	if l == "" {
		return "Unknown"
	}
	s := string(l)
	return strings.ToUpper(s[:1]) + s[1:]
}

// EpisodeRange describes the episodes a release covers. The zero value
// means no episode information was found.
type EpisodeRange struct {
	First   int  `json:"first,omitempty"`
	Last    int  `json:"last,omitempty"`
	Various bool `json:"various,omitempty"`
}

// Known reports whether any episode information is present.
func (r EpisodeRange) Known() bool {
	return r.Various || r.First > 0
}

// Single reports whether the range is exactly one numbered episode.
func (r EpisodeRange) Single() bool {
	return !r.Various && r.First > 0 && r.First == r.Last
}

func (r EpisodeRange) String() string {
	switch {
	case r.Various:
		return "Various"
	case r.First <= 0:
		return Unknown
	case r.First == r.Last:
		return fmt.Sprintf("Episode %d", r.First)
	default:
		return fmt.Sprintf("Episodes %d-%d", r.First, r.Last)
	}
}

// TorrentMetadata is the structured information derived from one listing.
// Values are replaced wholesale on re-extraction, never mutated.
type TorrentMetadata struct {
	ReleaseGroup     string       `json:"release_group"`
	AnimeName        string       `json:"anime_name"`
	Season           int          `json:"season,omitempty"`
	Episodes         EpisodeRange `json:"episodes"`
	AudioLanguage    Language     `json:"audio_language"`
	SubtitleLanguage Language     `json:"subtitle_language"`
	Quality          string       `json:"quality"`
	Dubbed           bool         `json:"dubbed"`
	Submitter        string       `json:"submitter,omitempty"`
	Description      string       `json:"description,omitempty"`
}

// DefaultMetadata returns metadata made only of sentinel defaults.
func DefaultMetadata() TorrentMetadata {
	return TorrentMetadata{
		ReleaseGroup:     Unknown,
		AnimeName:        Unknown,
		AudioLanguage:    LangUnknown,
		SubtitleLanguage: LangUnknown,
		Quality:          Unknown,
	}
}

// SeasonLabel renders the season as "Season N" or the unspecified sentinel.
func (m TorrentMetadata) SeasonLabel() string {
	if m.Season <= 0 {
		return Unspecified
	}
	return fmt.Sprintf("Season %d", m.Season)
}

// SeasonShort renders the season as "S2"; unspecified renders as "-".
func (m TorrentMetadata) SeasonShort() string {
	if m.Season <= 0 {
		return "-"
	}
	return fmt.Sprintf("S%d", m.Season)
}

// DisplayName builds the human readable group label for this metadata.
func (m TorrentMetadata) DisplayName() string {
	parts := []string{orUnknown(m.ReleaseGroup), orUnknown(m.AnimeName), m.SeasonLabel()}
	if m.AudioLanguage.Known() {
		parts = append(parts, "DUB "+m.AudioLanguage.Display())
	}
	if m.SubtitleLanguage.Known() {
		parts = append(parts, "SUB "+m.SubtitleLanguage.Display())
	}
	if m.Quality != "" && m.Quality != Unknown {
		parts = append(parts, "QUALITY "+m.Quality)
	}
	return strings.Join(parts, " - ")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
