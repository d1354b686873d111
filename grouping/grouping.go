// Package grouping clusters enriched torrents that describe the same
// release into deterministic, ordered groups.
package grouping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
)

// Key derives the canonical group key of meta. Nil metadata yields the
// all-sentinel key.
func Key(meta *models.TorrentMetadata) models.GroupKey {
	m := models.DefaultMetadata()
	if meta != nil {
		m = *meta
	}
	fold := cases.Fold()
	norm := func(s string) string {
		s = strings.Join(strings.Fields(fold.String(s)), " ")
		if s == "" {
			return models.Unknown
		}
		return s
	}
	return models.GroupKey{
		ReleaseGroup:     norm(m.ReleaseGroup),
		AnimeName:        norm(m.AnimeName),
		Season:           fold.String(m.SeasonLabel()),
		AudioLanguage:    norm(string(m.AudioLanguage)),
		SubtitleLanguage: norm(string(m.SubtitleLanguage)),
		Quality:          norm(m.Quality),
	}
}

// ID fingerprints a key. Equal keys always produce equal IDs.
func ID(key models.GroupKey) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key.String()))
}

// Group buckets items by key and returns one group per distinct key,
// ordered by total seeders descending, then label, then key.
func Group(items []models.EnrichedTorrent) []models.TorrentGroup {
	buckets := make(map[models.GroupKey][]models.EnrichedTorrent)
	for _, item := range items {
		k := Key(item.Metadata)
		buckets[k] = append(buckets[k], item)
	}

	groups := make([]models.TorrentGroup, 0, len(buckets))
	for key, members := range buckets {
		groups = append(groups, build(key, members))
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.TotalSeeders != b.TotalSeeders {
			return a.TotalSeeders > b.TotalSeeders
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Key.String() < b.Key.String()
	})
	return groups
}

func build(key models.GroupKey, members []models.EnrichedTorrent) models.TorrentGroup {
	sorted := make([]models.EnrichedTorrent, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Seeders != sorted[j].Seeders {
			return sorted[i].Seeders > sorted[j].Seeders
		}
		return sorted[i].ID < sorted[j].ID
	})

	rep := models.DefaultMetadata()
	if sorted[0].Metadata != nil {
		rep = *sorted[0].Metadata
	}

	g := models.TorrentGroup{
		ID:               ID(key),
		Key:              key,
		Label:            rep.DisplayName(),
		ReleaseGroup:     rep.ReleaseGroup,
		AnimeName:        rep.AnimeName,
		Season:           rep.Season,
		Coverage:         coverage(sorted),
		Quality:          rep.Quality,
		AudioLanguage:    rep.AudioLanguage,
		SubtitleLanguage: rep.SubtitleLanguage,
		Dubbed:           rep.AudioLanguage == models.LangEnglish,
		Count:            len(sorted),
		Members:          sorted,
	}
	for _, m := range sorted {
		g.TotalSeeders += m.Seeders
		if m.Metadata != nil && m.Metadata.Dubbed {
			g.Dubbed = true
		}
	}
	return g
}

// coverage folds member episodes. Single episodes span min to max; once a
// multi-episode range is involved a gap in the union makes it various.
// Members without episode information are ignored.
func coverage(members []models.EnrichedTorrent) models.EpisodeRange {
	var ranges []models.EpisodeRange
	multi := false
	for _, m := range members {
		if m.Metadata == nil || !m.Metadata.Episodes.Known() {
			continue
		}
		ep := m.Metadata.Episodes
		if ep.Various {
			return models.EpisodeRange{Various: true}
		}
		if !ep.Single() {
			multi = true
		}
		ranges = append(ranges, ep)
	}
	if len(ranges) == 0 {
		return models.EpisodeRange{}
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].First != ranges[j].First {
			return ranges[i].First < ranges[j].First
		}
		return ranges[i].Last < ranges[j].Last
	})
	out := models.EpisodeRange{First: ranges[0].First, Last: ranges[0].Last}
	for _, r := range ranges[1:] {
		if multi && r.First > out.Last+1 {
			return models.EpisodeRange{Various: true}
		}
		if r.Last > out.Last {
			out.Last = r.Last
		}
	}
	return out
}

// Find returns the group with the given ID.
func Find(groups []models.TorrentGroup, id string) (models.TorrentGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return models.TorrentGroup{}, false
}

// Members returns the members of the group with the given ID, or nil.
func Members(groups []models.TorrentGroup, id string) []models.EnrichedTorrent {
	g, ok := Find(groups, id)
	if !ok {
		return nil
	}
	return g.Members
}
