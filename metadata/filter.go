package metadata

import (
	"strings"

	"github.com/aluiziolira/go-scrape-anime/models"
	"golang.org/x/text/cases"
)

// DubKeywords mark a dubbed or dual-audio release.
var DubKeywords = []string{"dub", "dubbed", "dual audio", "dual", "english dub"}

// AudioKeywords and SubtitleKeywords map a language preference to the title
// fragments that satisfy it.
var (
	AudioKeywords = map[models.Language][]string{
		models.LangEnglish:    {"english dub", "eng dub", "dubbed", "dual audio", "dual", "dub"},
		models.LangJapanese:   {"japanese", "jpn", "raw"},
		models.LangSpanish:    {"spanish dub", "latino", "castellano", "esp dub"},
		models.LangPortuguese: {"portuguese", "pt-br", "brazilian"},
		models.LangFrench:     {"french dub", "vf", "french"},
		models.LangGerman:     {"german dub", "german"},
		models.LangItalian:    {"italian dub", "italian"},
		models.LangChinese:    {"chinese dub", "mandarin", "cantonese"},
	}
	SubtitleKeywords = map[models.Language][]string{
		models.LangEnglish:    {"eng sub", "english sub", "engsub", "[eng]", "english"},
		models.LangSpanish:    {"spanish sub", "esp sub", "spanish"},
		models.LangPortuguese: {"portuguese sub", "pt-br sub", "portuguese"},
		models.LangFrench:     {"french sub", "vostfr", "french"},
		models.LangGerman:     {"german sub", "german"},
		models.LangItalian:    {"italian sub", "italian"},
		models.LangChinese:    {"chinese sub", "chi sub", "chinese"},
		models.LangArabic:     {"arabic sub", "arabic"},
		models.LangMulti:      {"multi-sub", "multisub", "multi sub", "multi-subs", "multiple subtitle"},
	}
)

// foldCase builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// ContainsDubKeywords reports whether a title mentions any dub keyword.
func ContainsDubKeywords(title string) bool {
	return containsAny(foldCase(title), DubKeywords)
}

// DubQuery widens a search query to favor dubbed releases.
func DubQuery(query string) string {
	return query + " (" + strings.Join(DubKeywords[:3], " OR ") + ")"
}

// MatchesLanguage reports whether title satisfies lang according to
// vocabulary. An unknown preference or a language without keywords matches
// everything.
func MatchesLanguage(title string, lang models.Language, vocabulary map[models.Language][]string) bool {
	if !lang.Known() {
		return true
	}
	keywords := vocabulary[lang]
	if len(keywords) == 0 {
		return true
	}
	return containsAny(foldCase(title), keywords)
}

// FilterByLanguage keeps listings matching the audio and subtitle
// preferences. When nothing matches, the input is returned unchanged so a
// strict preference never empties a search.
func FilterByLanguage(listings []models.Listing, audio, subtitle models.Language) []models.Listing {
	if !audio.Known() && !subtitle.Known() {
		return listings
	}
	var kept []models.Listing
	for _, l := range listings {
		if MatchesLanguage(l.Title, audio, AudioKeywords) && MatchesLanguage(l.Title, subtitle, SubtitleKeywords) {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return listings
	}
	return kept
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
