package grouping

import (
	"testing"

	"github.com/aluiziolira/go-scrape-anime/metadata"
	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/stretchr/testify/require"
)

func enriched(id string, seeders int, meta *models.TorrentMetadata) models.EnrichedTorrent {
	return models.EnrichedTorrent{
		Listing:  models.Listing{ID: id, Title: id, Seeders: seeders},
		Metadata: meta,
	}
}

func fromTitle(e *metadata.Extractor, title string) *models.TorrentMetadata {
	m := e.ExtractTitle(title)
	return &m
}

func TestGroupFrierenScenario(t *testing.T) {
	e := metadata.NewExtractor()
	items := []models.EnrichedTorrent{
		enriched("1", 10, fromTitle(e, "[GroupA] Frieren S1 1080p")),
		enriched("2", 25, fromTitle(e, "[GroupA] Frieren S1 1080p")),
		enriched("3", 30, fromTitle(e, "[GroupB] Frieren S1 720p")),
	}

	groups := Group(items)
	require.Len(t, groups, 2)

	a := groups[0]
	require.Equal(t, "GroupA", a.ReleaseGroup)
	require.Equal(t, 2, a.Count)
	require.Equal(t, 35, a.TotalSeeders)
	require.Equal(t, 1, a.Season)
	require.Equal(t, "1080p", a.Quality)
	require.Equal(t, "2", a.Members[0].ID)
	require.Equal(t, "1", a.Members[1].ID)
	require.Equal(t, "GroupA - Frieren - Season 1 - QUALITY 1080p", a.Label)

	b := groups[1]
	require.Equal(t, "GroupB", b.ReleaseGroup)
	require.Equal(t, 1, b.Count)
	require.Equal(t, 30, b.TotalSeeders)
	require.Equal(t, "720p", b.Quality)
}

func TestKeyNormalization(t *testing.T) {
	a := &models.TorrentMetadata{
		ReleaseGroup:     "SubsPlease",
		AnimeName:        "Sousou  no   Frieren",
		Season:           1,
		AudioLanguage:    models.LangJapanese,
		SubtitleLanguage: models.LangEnglish,
		Quality:          "1080p",
	}
	b := *a
	b.ReleaseGroup = "subsplease"
	b.AnimeName = " SOUSOU NO FRIEREN "
	b.Episodes = models.EpisodeRange{First: 4, Last: 4}

	require.Equal(t, Key(a), Key(&b))
	require.Equal(t, ID(Key(a)), ID(Key(&b)))
	require.Equal(t, "sousou no frieren", Key(a).AnimeName)

	c := b
	c.Quality = "720p"
	require.NotEqual(t, Key(a), Key(&c))
}

func TestKeySentinels(t *testing.T) {
	want := models.GroupKey{
		ReleaseGroup:     models.Unknown,
		AnimeName:        models.Unknown,
		Season:           models.Unspecified,
		AudioLanguage:    models.Unknown,
		SubtitleLanguage: models.Unknown,
		Quality:          models.Unknown,
	}
	require.Equal(t, want, Key(nil))
	require.Equal(t, want, Key(&models.TorrentMetadata{}))
	d := models.DefaultMetadata()
	require.Equal(t, want, Key(&d))
}

func TestGroupKeysAreUnique(t *testing.T) {
	e := metadata.NewExtractor()
	titles := []string{
		"[SubsPlease] Sousou no Frieren - 01 (1080p)",
		"[SubsPlease] Sousou no Frieren - 02 (1080p)",
		"[subsplease] sousou no frieren - 03 (1080p)",
		"[SubsPlease] Sousou no Frieren - 01 (720p)",
		"[Erai-raws] Sousou no Frieren - 01 [1080p][Multiple Subtitle]",
	}
	var items []models.EnrichedTorrent
	for i, title := range titles {
		items = append(items, enriched(string(rune('a'+i)), i, fromTitle(e, title)))
	}
	items = append(items, enriched("z", 0, nil))

	groups := Group(items)
	require.Len(t, groups, 4)

	seen := make(map[models.GroupKey]bool)
	total := 0
	for _, g := range groups {
		require.False(t, seen[g.Key], "duplicate key %s", g.Key)
		seen[g.Key] = true
		total += g.Count
		for _, m := range g.Members {
			require.Equal(t, g.Key, Key(m.Metadata))
		}
	}
	require.Equal(t, len(items), total)
}

func TestGroupOrderIsDeterministic(t *testing.T) {
	meta := func(group string) *models.TorrentMetadata {
		return &models.TorrentMetadata{ReleaseGroup: group, AnimeName: "Show", Quality: "1080p"}
	}
	items := []models.EnrichedTorrent{
		enriched("1", 5, meta("Beta")),
		enriched("2", 5, meta("Alpha")),
		enriched("3", 9, meta("Gamma")),
	}
	reversed := []models.EnrichedTorrent{items[2], items[1], items[0]}

	first := Group(items)
	require.Equal(t, first, Group(reversed))
	require.Equal(t, []string{"Gamma", "Alpha", "Beta"}, []string{
		first[0].ReleaseGroup, first[1].ReleaseGroup, first[2].ReleaseGroup,
	})
}

func TestCoverage(t *testing.T) {
	single := func(n int) models.EpisodeRange { return models.EpisodeRange{First: n, Last: n} }
	tests := []struct {
		name     string
		episodes []models.EpisodeRange
		want     models.EpisodeRange
	}{
		{"singles span min to max", []models.EpisodeRange{single(5), single(1), single(3)}, models.EpisodeRange{First: 1, Last: 5}},
		{"one single", []models.EpisodeRange{single(7)}, single(7)},
		{"contiguous ranges merge", []models.EpisodeRange{{First: 1, Last: 12}, {First: 13, Last: 24}}, models.EpisodeRange{First: 1, Last: 24}},
		{"range absorbs single", []models.EpisodeRange{{First: 1, Last: 12}, single(4)}, models.EpisodeRange{First: 1, Last: 12}},
		{"gap with range is various", []models.EpisodeRange{{First: 1, Last: 12}, single(20)}, models.EpisodeRange{Various: true}},
		{"various member", []models.EpisodeRange{single(1), {Various: true}}, models.EpisodeRange{Various: true}},
		{"unknown members ignored", []models.EpisodeRange{{}, single(2), {}}, single(2)},
		{"no information", []models.EpisodeRange{{}, {}}, models.EpisodeRange{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []models.EnrichedTorrent
			for i, ep := range tt.episodes {
				items = append(items, enriched(string(rune('a'+i)), 1, &models.TorrentMetadata{
					ReleaseGroup: "G", AnimeName: "Show", Episodes: ep,
				}))
			}
			groups := Group(items)
			require.Len(t, groups, 1)
			require.Equal(t, tt.want, groups[0].Coverage)
		})
	}
}

func TestGroupDubbedFromAnyMember(t *testing.T) {
	items := []models.EnrichedTorrent{
		enriched("1", 1, &models.TorrentMetadata{ReleaseGroup: "G", AnimeName: "Show"}),
		enriched("2", 2, &models.TorrentMetadata{ReleaseGroup: "G", AnimeName: "Show", Dubbed: true}),
	}
	groups := Group(items)
	require.Len(t, groups, 1)
	require.True(t, groups[0].Dubbed)
}

func TestFindAndMembers(t *testing.T) {
	groups := Group([]models.EnrichedTorrent{
		enriched("1", 3, &models.TorrentMetadata{ReleaseGroup: "A", AnimeName: "Show"}),
		enriched("2", 1, &models.TorrentMetadata{ReleaseGroup: "B", AnimeName: "Show"}),
	})
	g, ok := Find(groups, groups[1].ID)
	require.True(t, ok)
	require.Equal(t, "B", g.ReleaseGroup)
	require.Len(t, Members(groups, g.ID), 1)

	_, ok = Find(groups, "missing")
	require.False(t, ok)
	require.Nil(t, Members(groups, "missing"))
}

func TestGroupEmpty(t *testing.T) {
	require.Empty(t, Group(nil))
}
