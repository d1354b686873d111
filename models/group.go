package models

// GroupKey is the canonical tuple identifying a cluster of equivalent
// releases. Components are case-folded and whitespace-collapsed.
type GroupKey struct {
	ReleaseGroup     string
	AnimeName        string
	Season           string
	AudioLanguage    string
	SubtitleLanguage string
	Quality          string
}

func (k GroupKey) String() string {
	return k.ReleaseGroup + "|" + k.AnimeName + "|" + k.Season + "|" +
		k.AudioLanguage + "|" + k.SubtitleLanguage + "|" + k.Quality
}

// TorrentGroup aggregates every enriched torrent sharing a GroupKey.
type TorrentGroup struct {
	ID               string            `json:"id"`
	Key              GroupKey          `json:"-"`
	Label            string            `json:"label"`
	ReleaseGroup     string            `json:"release_group"`
	AnimeName        string            `json:"anime_name"`
	Season           int               `json:"season,omitempty"`
	Coverage         EpisodeRange      `json:"coverage"`
	Quality          string            `json:"quality"`
	AudioLanguage    Language          `json:"audio_language"`
	SubtitleLanguage Language          `json:"subtitle_language"`
	Dubbed           bool              `json:"dubbed"`
	Count            int               `json:"count"`
	TotalSeeders     int               `json:"total_seeders"`
	Members          []EnrichedTorrent `json:"members"`
}
