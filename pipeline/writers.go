package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-anime/models"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []Row) error
	Close() error
	Validate() error
}

// Row is one exported torrent together with the group it landed in.
// Failed items carry no group and a non-empty Error.
type Row struct {
	GroupID    string `json:"group_id,omitempty"`
	GroupLabel string `json:"group_label,omitempty"`
	models.EnrichedTorrent
	Error string `json:"error,omitempty"`
}

// Rows flattens groups in presentation order, followed by failed items.
func Rows(groups []models.TorrentGroup, failed []models.EnrichedTorrent) []Row {
	var rows []Row
	for _, g := range groups {
		for _, m := range g.Members {
			rows = append(rows, Row{GroupID: g.ID, GroupLabel: g.Label, EnrichedTorrent: m})
		}
	}
	for _, f := range failed {
		row := Row{EnrichedTorrent: f}
		if f.Err != nil {
			row.Error = f.Err.Error()
		}
		rows = append(rows, row)
	}
	return rows
}

// NewWriter opens a writer for format: csv, json (JSONL) or dual. For dual
// output the extension of filename is replaced by .csv and .jsonl.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "dual":
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(base+".csv", base+".jsonl")
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

var csvHeader = []string{
	"group_id", "group_label", "id", "title", "release_group", "anime_name",
	"season", "episodes", "quality", "audio_language", "subtitle_language",
	"dubbed", "seeders", "leechers", "downloads", "size", "published_at",
	"detail_url", "magnet", "error",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends rows to the CSV output.
func (cw *CSVWriter) Write(rows []Row) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, row := range rows {
		if err := cw.writer.Write(csvRecord(row)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func csvRecord(row Row) []string {
	meta := models.DefaultMetadata()
	if row.Metadata != nil {
		meta = *row.Metadata
	}
	published := ""
	if !row.PublishedAt.IsZero() {
		published = row.PublishedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		row.GroupID,
		row.GroupLabel,
		row.ID,
		row.Title,
		meta.ReleaseGroup,
		meta.AnimeName,
		meta.SeasonLabel(),
		meta.Episodes.String(),
		meta.Quality,
		string(meta.AudioLanguage),
		string(meta.SubtitleLanguage),
		strconv.FormatBool(meta.Dubbed),
		strconv.Itoa(row.Seeders),
		strconv.Itoa(row.Leechers),
		strconv.Itoa(row.Downloads),
		row.Size,
		published,
		row.DetailURL,
		row.MagnetURI,
		row.Error,
	}
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends rows in JSONL format.
func (jw *JSONWriter) Write(rows []Row) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, row := range rows {
		if err := jw.encoder.Encode(row); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
