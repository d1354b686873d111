// Package metadata derives structured release facts from free-text torrent
// titles and detail pages using ordered, per-field pattern rules.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/aluiziolira/go-scrape-anime/parser"
	"github.com/moistari/rls"
)

const descriptionLimit = 200

// Extractor applies the rule sets of every metadata field. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	ReleaseGroup RuleSet[string]
	AnimeName    RuleSet[string]
	Season       RuleSet[int]
	Episodes     RuleSet[models.EpisodeRange]
	Quality      RuleSet[string]
	Audio        RuleSet[models.Language]
	Subtitle     RuleSet[models.Language]
	Dubbed       RuleSet[bool]
}

// NewExtractor returns an extractor loaded with the default rules.
func NewExtractor() *Extractor {
	return &Extractor{
		ReleaseGroup: newRuleSet(FieldReleaseGroup, models.Unknown, releaseGroupRules()...),
		AnimeName:    newRuleSet(FieldAnimeName, models.Unknown, animeNameRules()...),
		Season:       newRuleSet(FieldSeason, 0, seasonRules()...),
		Episodes:     newRuleSet(FieldEpisodes, models.EpisodeRange{}, episodeRules()...),
		Quality:      newRuleSet(FieldQuality, models.Unknown, qualityRules()...),
		Audio:        newRuleSet(FieldAudio, models.LangUnknown, audioRules()...),
		Subtitle:     newRuleSet(FieldSubtitle, models.LangUnknown, subtitleRules()...),
		Dubbed:       newRuleSet(FieldDubbed, false, dubbedRules()...),
	}
}

// Extract derives metadata from a parsed detail page. A non-empty submitter
// overrides the one found on the page.
func (e *Extractor) Extract(detail models.DetailPage, submitter string) models.TorrentMetadata {
	meta, _ := e.Explain(detail, submitter)
	return meta
}

// Explain is Extract plus the name of the rule that decided each field.
func (e *Extractor) Explain(detail models.DetailPage, submitter string) (models.TorrentMetadata, map[Field]string) {
	if strings.TrimSpace(submitter) == "" {
		submitter = detail.Submitter
	}
	in := Input{
		Title:       strings.TrimSpace(detail.Title),
		Description: detail.Description,
		Category:    detail.Category,
		Submitter:   strings.TrimSpace(submitter),
		Files:       detail.Files,
	}

	trace := make(map[Field]string, 8)
	var meta models.TorrentMetadata
	meta.ReleaseGroup, trace[FieldReleaseGroup] = e.ReleaseGroup.Apply(in)
	meta.AnimeName, trace[FieldAnimeName] = e.AnimeName.Apply(in)
	meta.Season, trace[FieldSeason] = e.Season.Apply(in)
	meta.Episodes, trace[FieldEpisodes] = e.Episodes.Apply(in)
	meta.Quality, trace[FieldQuality] = e.Quality.Apply(in)
	meta.AudioLanguage, trace[FieldAudio] = e.Audio.Apply(in)
	meta.SubtitleLanguage, trace[FieldSubtitle] = e.Subtitle.Apply(in)
	meta.Dubbed, trace[FieldDubbed] = e.Dubbed.Apply(in)
	meta.Submitter = in.Submitter
	meta.Description = truncate(strings.TrimSpace(in.Description), descriptionLimit)
	return meta, trace
}

// ExtractHTML parses a detail page and extracts its metadata.
func (e *Extractor) ExtractHTML(body []byte, baseURL, submitter string) (models.TorrentMetadata, error) {
	detail, err := parser.ParseDetailPage(body, baseURL)
	if err != nil {
		return models.TorrentMetadata{}, fmt.Errorf("extract metadata: %w", err)
	}
	return e.Extract(detail, submitter), nil
}

// ExtractTitle extracts what a listing title alone reveals.
func (e *Extractor) ExtractTitle(title string) models.TorrentMetadata {
	return e.Extract(models.DetailPage{Title: title}, "")
}

// ExtractListing extracts from a listing's title and category.
func (e *Extractor) ExtractListing(l models.Listing) models.TorrentMetadata {
	return e.Extract(models.DetailPage{Title: l.Title, Category: l.CategoryName}, "")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// release group

var (
	groupBracketPrefix = regexp.MustCompile(`^\s*\[([^\]]+)\]`)
	groupParenPrefix   = regexp.MustCompile(`^\s*\(([^)]+)\)`)
	groupSceneSuffix   = regexp.MustCompile(`-([A-Za-z0-9]+)(?:\.[A-Za-z0-9]{2,4})?$`)
	hasLetter          = regexp.MustCompile(`[A-Za-z]`)
)

func releaseGroupRules() []Rule[string] {
	return []Rule[string]{
		{Priority: 10, Name: "submitter", Match: func(in Input) (string, bool) {
			if in.Submitter == "" || strings.EqualFold(in.Submitter, models.Anonymous) {
				return "", false
			}
			return in.Submitter, true
		}},
		{Priority: 20, Name: "bracket-prefix", Match: submatchRule(groupBracketPrefix)},
		{Priority: 30, Name: "paren-prefix", Match: submatchRule(groupParenPrefix)},
		{Priority: 40, Name: "scene-suffix", Match: func(in Input) (string, bool) {
			m := groupSceneSuffix.FindStringSubmatch(in.Title)
			if m == nil || !hasLetter.MatchString(m[1]) {
				return "", false
			}
			return m[1], true
		}},
		{Priority: 50, Name: "release-name", Match: func(in Input) (string, bool) {
			if in.Title == "" {
				return "", false
			}
			group := strings.TrimSpace(rls.ParseString(in.Title).Group)
			return group, group != ""
		}},
	}
}

func submatchRule(re *regexp.Regexp) func(Input) (string, bool) {
	return func(in Input) (string, bool) {
		m := re.FindStringSubmatch(in.Title)
		if m == nil {
			return "", false
		}
		v := strings.TrimSpace(m[1])
		return v, v != ""
	}
}

// anime name

var (
	leadingBrackets = regexp.MustCompile(`^\s*(?:\[[^\]]*\]|\([^)]*\))\s*`)
	fileExtension   = regexp.MustCompile(`(?i)\.(?:mkv|mp4|avi|m4v|webm|ts)$`)
	nameCutters     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*\b(?:S\d{1,2}(?:E\d+)?|Season\s?\d+)\b.*$`),
		regexp.MustCompile(`(?i)\s*\b\d{1,2}(?:st|nd|rd|th)\s+Season\b.*$`),
		regexp.MustCompile(`(?i)\s*\b(?:First|Second|Third|Fourth|Fifth|Sixth|Seventh|Eighth|Ninth|Tenth)\s+Season\b.*$`),
		regexp.MustCompile(`(?i)\s*\bSeason\s+[IVX]+\b.*$`),
		regexp.MustCompile(`(?i)\s*\bPart\s+\d+.*$`),
		regexp.MustCompile(`(?i)\s*\bCour\s+\d+.*$`),
		regexp.MustCompile(`(?i)\s*\b(?:E|EP\.?\s?|Episode\s?)\d+.*$`),
		regexp.MustCompile(`\s+[-–]\s+\d+.*$`),
		regexp.MustCompile(`(?i)\s*\b(?:2160p|1080p|720p|480p|360p|4K)\b.*$`),
		regexp.MustCompile(`\s*[\[(].*$`),
	}
)

// StripAnimeName removes the group prefix and season, episode, quality and
// bracket suffixes from a title.
func StripAnimeName(title string) string {
	name := stripGroupPrefix(title)
	name = fileExtension.ReplaceAllString(name, "")
	for _, re := range nameCutters {
		name = re.ReplaceAllString(name, "")
	}
	return strings.Trim(strings.Join(strings.Fields(name), " "), " -_.~")
}

// stripGroupPrefix drops every leading [..] or (..) block, so tags such as
// "[S3 Fansubs]" do not read as season or episode markers.
func stripGroupPrefix(title string) string {
	name := strings.TrimSpace(title)
	for {
		stripped := leadingBrackets.ReplaceAllString(name, "")
		if stripped == name {
			return name
		}
		name = stripped
	}
}

func animeNameRules() []Rule[string] {
	return []Rule[string]{
		{Priority: 10, Name: "stripped-title", Match: func(in Input) (string, bool) {
			name := StripAnimeName(in.Title)
			return name, name != ""
		}},
		{Priority: 20, Name: "release-name", Match: func(in Input) (string, bool) {
			if in.Title == "" {
				return "", false
			}
			name := strings.TrimSpace(rls.ParseString(in.Title).Title)
			return name, name != ""
		}},
	}
}

// season

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

type seasonPattern struct {
	name  string
	re    *regexp.Regexp
	parse func(string) int
}

var seasonPatterns = []seasonPattern{
	{"standard", regexp.MustCompile(`(?i)\b(?:S(\d{1,2})(?:E\d|\b)|Season\s?(\d{1,2})\b)`), atoi},
	{"ordinal-number", regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\s+Season\b`), atoi},
	{"ordinal-word", regexp.MustCompile(`(?i)\b(First|Second|Third|Fourth|Fifth|Sixth|Seventh|Eighth|Ninth|Tenth)\s+Season\b`), func(s string) int {
		return ordinalWords[strings.ToLower(s)]
	}},
	{"roman", regexp.MustCompile(`(?i)\bSeason\s+([IVX]+)\b`), parseRoman},
	{"part", regexp.MustCompile(`(?i)\bPart\s+(\d{1,2})\b`), atoi},
	{"cour", regexp.MustCompile(`(?i)\bCour\s+(\d{1,2})\b`), atoi},
}

func seasonRules() []Rule[int] {
	var rules []Rule[int]
	sources := []struct {
		name string
		base int
		text func(Input) string
	}{
		{"title", 0, func(in Input) string { return stripGroupPrefix(in.Title) }},
		{"description", 100, func(in Input) string { return in.Description }},
	}
	for _, src := range sources {
		for i, p := range seasonPatterns {
			rules = append(rules, Rule[int]{
				Priority: src.base + (i+1)*10,
				Name:     src.name + "-" + p.name,
				Match: func(in Input) (int, bool) {
					m := p.re.FindStringSubmatch(src.text(in))
					if m == nil {
						return 0, false
					}
					n := p.parse(firstGroup(m))
					return n, n > 0
				},
			})
		}
	}
	rules = append(rules,
		Rule[int]{Priority: 180, Name: "release-name", Match: func(in Input) (int, bool) {
			if in.Title == "" {
				return 0, false
			}
			n := rls.ParseString(stripGroupPrefix(in.Title)).Series
			return n, n > 0
		}},
		// an episode marker without any season marker is a first season
		Rule[int]{Priority: 200, Name: "episode-inferred", Match: func(in Input) (int, bool) {
			for _, r := range episodeRules() {
				if _, ok := r.Match(in); ok {
					return 1, true
				}
			}
			return 0, false
		}},
	)
	return rules
}

func parseRoman(numeral string) int {
	values := map[rune]int{'I': 1, 'V': 5, 'X': 10}
	total, prev := 0, 0
	runes := []rune(strings.ToUpper(numeral))
	for i := len(runes) - 1; i >= 0; i-- {
		v := values[runes[i]]
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}

// episodes

var (
	episodeRangePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bE(?:P\.?)?\s?(\d{1,4})\s?[-~]\s?E(?:P\.?)?\s?(\d{1,4})\b`),
		regexp.MustCompile(`(?i)\bEpisodes?\s+(\d{1,4})\s?(?:-|~|to)\s?(\d{1,4})\b`),
		regexp.MustCompile(`\s(\d{1,4})\s?~\s?(\d{1,4})\b`),
		regexp.MustCompile(`[\[(](\d{1,4})\s?-\s?(\d{1,4})[\])]`),
		regexp.MustCompile(`\s[-–]\s(\d{1,4})\s?-\s?(\d{1,4})(?:\s|$|\[|\()`),
	}
	episodeBatch     = regexp.MustCompile(`(?i)\b(?:batch|complete(?:\s+series)?)\b`)
	episodeSingle    = regexp.MustCompile(`(?i)(?:\bS\d{1,2}|\b)(?:E|EP\.?\s?|Episode\s?)(\d{1,4})(?:v\d+)?\b`)
	episodeDelimited = regexp.MustCompile(`\s[-–]\s(\d{1,4})(?:v\d+)?(?:\s|$|\[|\(|\.)`)
)

func episodeRules() []Rule[models.EpisodeRange] {
	return []Rule[models.EpisodeRange]{
		{Priority: 10, Name: "range", Match: func(in Input) (models.EpisodeRange, bool) {
			for _, re := range episodeRangePatterns {
				m := re.FindStringSubmatch(stripGroupPrefix(in.Title))
				if m == nil {
					continue
				}
				first, last := atoi(m[1]), atoi(m[2])
				if first > 0 && last >= first && !looksLikeYear(m[1]) {
					return models.EpisodeRange{First: first, Last: last}, true
				}
			}
			return models.EpisodeRange{}, false
		}},
		{Priority: 20, Name: "batch", Match: func(in Input) (models.EpisodeRange, bool) {
			if episodeBatch.MatchString(in.Title) {
				return models.EpisodeRange{Various: true}, true
			}
			return models.EpisodeRange{}, false
		}},
		{Priority: 30, Name: "marker", Match: singleEpisode(episodeSingle)},
		{Priority: 40, Name: "delimited", Match: singleEpisode(episodeDelimited)},
	}
}

func singleEpisode(re *regexp.Regexp) func(Input) (models.EpisodeRange, bool) {
	return func(in Input) (models.EpisodeRange, bool) {
		m := re.FindStringSubmatch(stripGroupPrefix(in.Title))
		if m == nil {
			return models.EpisodeRange{}, false
		}
		n := atoi(m[1])
		if n <= 0 || looksLikeYear(m[1]) {
			return models.EpisodeRange{}, false
		}
		return models.EpisodeRange{First: n, Last: n}, true
	}
}

// quality

var (
	qualityPattern = regexp.MustCompile(`(?i)\b(2160p|4K|UHD|1080p|FHD|1920x1080|720p|1280x720|480p|360p)\b`)
	qualityAliases = map[string]string{
		"2160p": "2160p", "4k": "2160p", "uhd": "2160p",
		"1080p": "1080p", "fhd": "1080p", "1920x1080": "1080p",
		"720p": "720p", "1280x720": "720p",
		"480p": "480p",
		"360p": "360p",
	}
)

// NormalizeQuality maps resolution spellings to one token, e.g. FHD to 1080p.
func NormalizeQuality(token string) (string, bool) {
	q, ok := qualityAliases[strings.ToLower(strings.TrimSpace(token))]
	return q, ok
}

func qualityRules() []Rule[string] {
	fromText := func(text func(Input) []string) func(Input) (string, bool) {
		return func(in Input) (string, bool) {
			for _, t := range text(in) {
				if m := qualityPattern.FindStringSubmatch(t); m != nil {
					return NormalizeQuality(m[1])
				}
			}
			return "", false
		}
	}
	return []Rule[string]{
		{Priority: 10, Name: "title", Match: fromText(func(in Input) []string { return []string{in.Title} })},
		{Priority: 20, Name: "description", Match: fromText(func(in Input) []string { return []string{in.Description} })},
		{Priority: 30, Name: "files", Match: fromText(func(in Input) []string { return in.Files })},
		{Priority: 40, Name: "release-name", Match: func(in Input) (string, bool) {
			if in.Title == "" {
				return "", false
			}
			return NormalizeQuality(rls.ParseString(in.Title).Resolution)
		}},
	}
}

// audio and subtitles

var (
	audioLanguageAnchor = regexp.MustCompile(`(?i)\b(` + languageAlternation + `)[\s._-]*(?:dub(?:bed)?|audio)\b`)
	audioDubKeywords    = regexp.MustCompile(`(?i)\b(?:dual[\s._-]?audio|dubbed|dub|dual)\b`)
	audioJapanese       = regexp.MustCompile(`(?i)\b(?:raw|jpn|jap|japanese)\b`)
	subFollows          = regexp.MustCompile(`(?i)^[\s._-]*sub`)

	subMulti           = regexp.MustCompile(`(?i)\b(?:multi[\s._-]?sub(?:s|titles?)?|multisubs?|multiple[\s._-]?sub(?:s|titles?)?)\b`)
	subLanguageAnchor  = regexp.MustCompile(`(?i)\b(` + languageAlternation + `)[\s._-]*(?:sub(?:s|bed|titles?|titled)?)\b`)
	subLanguageBracket = regexp.MustCompile(`(?i)[\[(](` + languageAlternation + `)[\])]`)
	subVostfr          = regexp.MustCompile(`(?i)\bvostfr\b`)
	subSubbed          = regexp.MustCompile(`(?i)\bsubbed\b`)
)

func combined(in Input) string {
	return in.Title + " " + in.Description
}

func languageRule(re *regexp.Regexp) func(Input) (models.Language, bool) {
	return func(in Input) (models.Language, bool) {
		m := re.FindStringSubmatch(combined(in))
		if m == nil {
			return "", false
		}
		return LookupLanguage(m[1])
	}
}

func keywordRule(re *regexp.Regexp, lang models.Language) func(Input) (models.Language, bool) {
	return func(in Input) (models.Language, bool) {
		if re.MatchString(combined(in)) {
			return lang, true
		}
		return "", false
	}
}

func audioRules() []Rule[models.Language] {
	return []Rule[models.Language]{
		{Priority: 10, Name: "language-dub", Match: languageRule(audioLanguageAnchor)},
		{Priority: 20, Name: "dub-keyword", Match: keywordRule(audioDubKeywords, models.LangEnglish)},
		{Priority: 30, Name: "japanese-keyword", Match: func(in Input) (models.Language, bool) {
			text := combined(in)
			for _, loc := range audioJapanese.FindAllStringIndex(text, -1) {
				// "Japanese subs" describes subtitles, not audio
				if !subFollows.MatchString(text[loc[1]:]) {
					return models.LangJapanese, true
				}
			}
			return "", false
		}},
		{Priority: 40, Name: "category-raw", Match: func(in Input) (models.Language, bool) {
			if strings.Contains(in.Category, "Raw") {
				return models.LangJapanese, true
			}
			return "", false
		}},
	}
}

func subtitleRules() []Rule[models.Language] {
	return []Rule[models.Language]{
		{Priority: 10, Name: "multi-sub", Match: keywordRule(subMulti, models.LangMulti)},
		{Priority: 20, Name: "language-sub", Match: languageRule(subLanguageAnchor)},
		{Priority: 30, Name: "language-bracket", Match: languageRule(subLanguageBracket)},
		{Priority: 40, Name: "vostfr", Match: keywordRule(subVostfr, models.LangFrench)},
		{Priority: 50, Name: "subbed", Match: keywordRule(subSubbed, models.LangEnglish)},
		{Priority: 60, Name: "category", Match: func(in Input) (models.Language, bool) {
			switch {
			case strings.Contains(in.Category, "Non-English-translated"):
				return models.LangUnknown, true
			case strings.Contains(in.Category, "English-translated"):
				return models.LangEnglish, true
			case strings.Contains(in.Category, "Raw"):
				return models.LangNone, true
			}
			return "", false
		}},
	}
}

// dub flag

var dubFlag = regexp.MustCompile(`(?i)\b(?:english[\s._-]?dub|dual[\s._-]?audio|dubbed|dub|dual)\b`)

func dubbedRules() []Rule[bool] {
	return []Rule[bool]{
		{Priority: 10, Name: "dub-keyword", Match: func(in Input) (bool, bool) {
			return true, dubFlag.MatchString(in.Title)
		}},
	}
}

// helpers

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func looksLikeYear(digits string) bool {
	n := atoi(digits)
	return len(digits) == 4 && n >= 1900 && n <= 2100
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
