package metadata

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aluiziolira/go-scrape-anime/models"
)

// languageSynonyms maps every accepted spelling to its language. Short codes
// are only trusted next to an anchor such as "dub", "sub" or brackets.
var languageSynonyms = map[string]models.Language{
	"english": models.LangEnglish, "eng": models.LangEnglish, "en": models.LangEnglish,
	"japanese": models.LangJapanese, "jpn": models.LangJapanese, "jap": models.LangJapanese, "jp": models.LangJapanese, "ja": models.LangJapanese,
	"spanish": models.LangSpanish, "esp": models.LangSpanish, "spa": models.LangSpanish, "es": models.LangSpanish, "latino": models.LangSpanish, "castellano": models.LangSpanish,
	"portuguese": models.LangPortuguese, "por": models.LangPortuguese, "pt": models.LangPortuguese, "pt-br": models.LangPortuguese, "ptbr": models.LangPortuguese, "brazilian": models.LangPortuguese,
	"french": models.LangFrench, "fre": models.LangFrench, "fra": models.LangFrench, "fr": models.LangFrench,
	"german": models.LangGerman, "ger": models.LangGerman, "deu": models.LangGerman, "de": models.LangGerman,
	"italian": models.LangItalian, "ita": models.LangItalian, "it": models.LangItalian,
	"chinese": models.LangChinese, "chi": models.LangChinese, "chs": models.LangChinese, "cht": models.LangChinese, "zh": models.LangChinese, "mandarin": models.LangChinese, "cantonese": models.LangChinese,
	"arabic": models.LangArabic, "ara": models.LangArabic, "ar": models.LangArabic,
	"russian": models.LangRussian, "rus": models.LangRussian, "ru": models.LangRussian,
	"korean": models.LangKorean, "kor": models.LangKorean, "ko": models.LangKorean,
}

// languageAlternation is a regexp alternation of all synonyms, longest first
// so "english" wins over "en".
var languageAlternation = func() string {
	words := make([]string, 0, len(languageSynonyms))
	for w := range languageSynonyms {
		words = append(words, regexp.QuoteMeta(w))
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return strings.Join(words, "|")
}()

// LookupLanguage resolves a synonym such as "eng" or "English".
func LookupLanguage(word string) (models.Language, bool) {
	lang, ok := languageSynonyms[strings.ToLower(strings.TrimSpace(word))]
	return lang, ok
}

// ParseLanguage resolves a user-supplied language preference. "any" and ""
// mean no preference and return LangUnknown.
func ParseLanguage(s string) (models.Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "any":
		return models.LangUnknown, true
	case string(models.LangMulti):
		return models.LangMulti, true
	case string(models.LangNone):
		return models.LangNone, true
	}
	return LookupLanguage(s)
}
