// Package models defines data structures shared by the scraper stages.
package models

import (
	"fmt"
	"time"
)

// Listing is one row of a search-results page.
type Listing struct {
	ID           string    `csv:"id" json:"id"`
	Title        string    `csv:"title" json:"title"`
	DetailURL    string    `csv:"detail_url" json:"detail_url"`
	TorrentURL   string    `csv:"torrent_url" json:"torrent_url"`
	MagnetURI    string    `csv:"magnet" json:"magnet"`
	Size         string    `csv:"size" json:"size"`
	SizeBytes    uint64    `csv:"size_bytes" json:"size_bytes"`
	Seeders      int       `csv:"seeders" json:"seeders"`
	Leechers     int       `csv:"leechers" json:"leechers"`
	Downloads    int       `csv:"downloads" json:"downloads"`
	PublishedAt  time.Time `csv:"published_at" json:"published_at"`
	Category     string    `csv:"category" json:"category"`
	CategoryName string    `csv:"category_name" json:"category_name"`
}

func (l Listing) String() string {
	return fmt.Sprintf("%s [%s] S:%d L:%d", l.Title, l.Size, l.Seeders, l.Leechers)
}

// DetailPage holds the fields read from a torrent's detail page.
type DetailPage struct {
	Title       string
	Submitter   string
	Category    string
	Description string
	InfoHash    string
	Files       []string
}

// EnrichedTorrent pairs a listing with the metadata extracted for it.
// Metadata is nil when extraction was skipped or failed; Err then holds
// the reason.
type EnrichedTorrent struct {
	Listing
	Metadata *TorrentMetadata `json:"metadata,omitempty"`
	Err      error            `json:"-"`
}

// RunResult holds the overall result of one orchestrated run.
type RunResult struct {
	RunID        string
	Query        string
	Items        []EnrichedTorrent
	Failed       []EnrichedTorrent
	Groups       []TorrentGroup
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	PagesFailed  int
	ListingCount int
	Succeeded    int
	Skipped      int // listings never dispatched before the run ended
	ErrorCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
	CacheHits    int
}
