package metadata

import (
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/aluiziolira/go-scrape-anime/parser"
	"github.com/stretchr/testify/require"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		group    string
		anime    string
		season   int
		episodes models.EpisodeRange
		quality  string
	}{
		{
			name:    "bracket group with season marker",
			title:   "[GroupA] Frieren S1 1080p",
			group:   "GroupA",
			anime:   "Frieren",
			season:  1,
			quality: "1080p",
		},
		{
			name:     "delimited episode infers first season",
			title:    "[SubsPlease] Sousou no Frieren - 01 (1080p) [F02B9CEE].mkv",
			group:    "SubsPlease",
			anime:    "Sousou no Frieren",
			season:   1,
			episodes: models.EpisodeRange{First: 1, Last: 1},
			quality:  "1080p",
		},
		{
			name:     "ordinal season",
			title:    "[Erai-raws] Sousou no Frieren 2nd Season - 03 [1080p][Multiple Subtitle]",
			group:    "Erai-raws",
			anime:    "Sousou no Frieren",
			season:   2,
			episodes: models.EpisodeRange{First: 3, Last: 3},
			quality:  "1080p",
		},
		{
			name:     "ordinal word season",
			title:    "[Group] Frieren Second Season E05 [720p]",
			group:    "Group",
			anime:    "Frieren",
			season:   2,
			episodes: models.EpisodeRange{First: 5, Last: 5},
			quality:  "720p",
		},
		{
			name:     "roman season",
			title:    "[Group] Show Season II - 07 [FHD]",
			group:    "Group",
			anime:    "Show",
			season:   2,
			episodes: models.EpisodeRange{First: 7, Last: 7},
			quality:  "1080p",
		},
		{
			name:     "group tag is not a season marker",
			title:    "[S3 Fansubs] Frieren - 01 [720p]",
			group:    "S3 Fansubs",
			anime:    "Frieren",
			season:   1,
			episodes: models.EpisodeRange{First: 1, Last: 1},
			quality:  "720p",
		},
		{
			name:    "group tag is not an episode marker",
			title:   "[E7-Subs] Frieren S2 [1080p]",
			group:   "E7-Subs",
			anime:   "Frieren",
			season:  2,
			quality: "1080p",
		},
		{
			name:     "cour",
			title:    "(Group) Show Cour 2 - 13 [1280x720]",
			group:    "Group",
			anime:    "Show",
			season:   2,
			episodes: models.EpisodeRange{First: 13, Last: 13},
			quality:  "720p",
		},
		{
			name:     "standard season wins over part",
			title:    "[Judas] Shingeki no Kyojin Season 3 Part 2 (Dual Audio) [4K]",
			group:    "Judas",
			anime:    "Shingeki no Kyojin",
			season:   3,
			quality:  "2160p",
			episodes: models.EpisodeRange{},
		},
		{
			name:     "scene style name",
			title:    "Show.S02E05.1080p.WEB-DL-GRP.mkv",
			group:    "GRP",
			anime:    "Show",
			season:   2,
			episodes: models.EpisodeRange{First: 5, Last: 5},
			quality:  "1080p",
		},
	}

	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := extractor.ExtractTitle(tt.title)
			require.Equal(t, tt.group, meta.ReleaseGroup)
			require.Equal(t, tt.anime, meta.AnimeName)
			require.Equal(t, tt.season, meta.Season)
			require.Equal(t, tt.episodes, meta.Episodes)
			require.Equal(t, tt.quality, meta.Quality)
		})
	}
}

func TestExtractEpisodeRanges(t *testing.T) {
	tests := []struct {
		title string
		want  models.EpisodeRange
	}{
		{"[Group] Show E01-E12 [720p]", models.EpisodeRange{First: 1, Last: 12}},
		{"[Group] Show (01-12) [Batch]", models.EpisodeRange{First: 1, Last: 12}},
		{"[Group] Show 01 ~ 24 [1080p]", models.EpisodeRange{First: 1, Last: 24}},
		{"[Group] Show - 01-28 [1080p]", models.EpisodeRange{First: 1, Last: 28}},
		{"[Group] Show Complete Series [1080p]", models.EpisodeRange{Various: true}},
		{"[Group] Show [Batch]", models.EpisodeRange{Various: true}},
		{"[Group] Show Episode 9", models.EpisodeRange{First: 9, Last: 9}},
		{"[Group] Show - 05v2 [720p]", models.EpisodeRange{First: 5, Last: 5}},
		{"[Group] Show Movie - 2023 [1080p]", models.EpisodeRange{}},
		{"[Group] Show (2019-2020) [1080p]", models.EpisodeRange{}},
	}
	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			require.Equal(t, tt.want, extractor.ExtractTitle(tt.title).Episodes)
		})
	}
}

func TestExtractLanguages(t *testing.T) {
	tests := []struct {
		name     string
		detail   models.DetailPage
		audio    models.Language
		subtitle models.Language
		dubbed   bool
	}{
		{
			name:     "dual audio means english dub",
			detail:   models.DetailPage{Title: "[Judas] Show - 01 (Dual Audio) [1080p]"},
			audio:    models.LangEnglish,
			subtitle: models.LangUnknown,
			dubbed:   true,
		},
		{
			name:     "language anchored dub",
			detail:   models.DetailPage{Title: "[Group] Show - 01 [Spanish Dub]"},
			audio:    models.LangSpanish,
			subtitle: models.LangUnknown,
			dubbed:   true,
		},
		{
			name:     "short code anchored by sub",
			detail:   models.DetailPage{Title: "[Group] Show - 01 [Eng Sub]"},
			audio:    models.LangUnknown,
			subtitle: models.LangEnglish,
		},
		{
			name:     "bracketed language",
			detail:   models.DetailPage{Title: "[Group] Show - 01 [ENG]"},
			audio:    models.LangUnknown,
			subtitle: models.LangEnglish,
		},
		{
			name:     "vostfr",
			detail:   models.DetailPage{Title: "[Group] Show - 01 (VOSTFR)"},
			audio:    models.LangUnknown,
			subtitle: models.LangFrench,
		},
		{
			name:     "multi sub",
			detail:   models.DetailPage{Title: "[Erai-raws] Show - 01 [1080p][Multiple Subtitle]"},
			audio:    models.LangUnknown,
			subtitle: models.LangMulti,
		},
		{
			name:     "raw",
			detail:   models.DetailPage{Title: "[Group] Show - 01 RAW"},
			audio:    models.LangJapanese,
			subtitle: models.LangUnknown,
		},
		{
			name:     "japanese subs are not japanese audio",
			detail:   models.DetailPage{Title: "[Group] Show - 01 [Japanese Subs]"},
			audio:    models.LangUnknown,
			subtitle: models.LangJapanese,
		},
		{
			name:     "unanchored code is ignored",
			detail:   models.DetailPage{Title: "[Group] Show - 01 [1080p] en"},
			audio:    models.LangUnknown,
			subtitle: models.LangUnknown,
		},
		{
			name: "description mentions languages",
			detail: models.DetailPage{
				Title:       "[SubsPlease] Show - 01 (1080p)",
				Description: "English subtitles, Japanese audio.",
			},
			audio:    models.LangJapanese,
			subtitle: models.LangEnglish,
		},
		{
			name:     "english translated category",
			detail:   models.DetailPage{Title: "[Group] Show - 01", Category: "Anime - English-translated"},
			audio:    models.LangUnknown,
			subtitle: models.LangEnglish,
		},
		{
			name:     "non english translated category",
			detail:   models.DetailPage{Title: "[Group] Show - 01", Category: "Anime - Non-English-translated"},
			audio:    models.LangUnknown,
			subtitle: models.LangUnknown,
		},
		{
			name:     "raw category",
			detail:   models.DetailPage{Title: "[Group] Show - 01", Category: "Anime - Raw"},
			audio:    models.LangJapanese,
			subtitle: models.LangNone,
		},
	}

	extractor := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := extractor.Extract(tt.detail, "")
			require.Equal(t, tt.audio, meta.AudioLanguage, "audio")
			require.Equal(t, tt.subtitle, meta.SubtitleLanguage, "subtitle")
			require.Equal(t, tt.dubbed, meta.Dubbed, "dubbed")
		})
	}
}

func TestExtractSubmitterPrecedence(t *testing.T) {
	extractor := NewExtractor()
	detail := models.DetailPage{Title: "[SubsPlease] Show - 01 (1080p)", Submitter: "subsplease"}

	require.Equal(t, "subsplease", extractor.Extract(detail, "").ReleaseGroup)
	require.Equal(t, "uploader", extractor.Extract(detail, "uploader").ReleaseGroup)

	detail.Submitter = models.Anonymous
	meta := extractor.Extract(detail, "")
	require.Equal(t, "SubsPlease", meta.ReleaseGroup)
	require.Equal(t, models.Anonymous, meta.Submitter)
}

func TestExtractSeasonFromDescription(t *testing.T) {
	extractor := NewExtractor()
	meta, trace := extractor.Explain(models.DetailPage{
		Title:       "[Group] Show - 05 [720p]",
		Description: "The 3rd Season of Show, airing weekly.",
	}, "")
	require.Equal(t, 3, meta.Season)
	require.Equal(t, "description-ordinal-number", trace[FieldSeason])
	require.Equal(t, "delimited", trace[FieldEpisodes])
}

func TestExtractQualityFallsBackToFiles(t *testing.T) {
	extractor := NewExtractor()
	meta, trace := extractor.Explain(models.DetailPage{
		Title: "[Group] Show - 01",
		Files: []string{"Extras/NCOP.mkv", "[Group] Show - 01 [720p].mkv"},
	}, "")
	require.Equal(t, "720p", meta.Quality)
	require.Equal(t, "files", trace[FieldQuality])
}

func TestExtractZeroMatchYieldsSentinels(t *testing.T) {
	extractor := NewExtractor()
	body := []byte(`<div class="panel"><h3 class="panel-title"></h3></div>`)
	meta, err := extractor.ExtractHTML(body, "https://nyaa.si/view/1", "")
	require.NoError(t, err)
	require.Equal(t, models.DefaultMetadata(), meta)
	require.Equal(t, models.Unspecified, meta.SeasonLabel())
	require.Equal(t, models.Unknown, meta.Episodes.String())
}

func TestExtractHTMLMalformed(t *testing.T) {
	_, err := NewExtractor().ExtractHTML([]byte(`<p>rate limited</p>`), "https://nyaa.si/view/1", "")
	require.ErrorIs(t, err, parser.ErrMalformedPage)
}

func TestExtractIsDeterministic(t *testing.T) {
	details := []models.DetailPage{
		{Title: "[SubsPlease] Sousou no Frieren - 01 (1080p) [F02B9CEE].mkv", Submitter: "subsplease", Category: "Anime - English-translated"},
		{Title: "[Judas] Shingeki no Kyojin Season 3 Part 2 (Dual Audio) [4K]", Description: "Batch of the whole cour."},
		{Title: "Show.S02E05.1080p.WEB-DL-GRP.mkv", Files: []string{"Show.S02E05.1080p.WEB-DL-GRP.mkv"}},
		{Title: ""},
	}
	for _, d := range details {
		first := NewExtractor().Extract(d, "")
		for i := 0; i < 5; i++ {
			require.Equal(t, first, NewExtractor().Extract(d, ""))
		}
	}
}

func TestExtractTruncatesDescription(t *testing.T) {
	desc := strings.Repeat("é", 300)
	meta := NewExtractor().Extract(models.DetailPage{Title: "Show", Description: desc}, "")
	require.Equal(t, 200, len([]rune(meta.Description)))
}

func TestRuleOrder(t *testing.T) {
	extractor := NewExtractor()
	names := extractor.Season.Names()
	require.Equal(t, "title-standard", names[0])
	require.Equal(t, "episode-inferred", names[len(names)-1])
	require.Equal(t, []string{"submitter", "bracket-prefix", "paren-prefix", "scene-suffix", "release-name"}, extractor.ReleaseGroup.Names())
	require.Equal(t, FieldSeason, extractor.Season.Field)
}

func TestStripAnimeName(t *testing.T) {
	tests := map[string]string{
		"[SubsPlease] Sousou no Frieren - 01 (1080p) [F02B9CEE].mkv": "Sousou no Frieren",
		"[A][B] Show S2 - 04":                                         "Show",
		"Show Part 2 [1080p]":                                         "Show",
		"Show (2023) [1080p]":                                         "Show",
		"[Only Group]":                                                "",
	}
	for in, want := range tests {
		require.Equal(t, want, StripAnimeName(in), in)
	}
}
