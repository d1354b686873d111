package main

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/aluiziolira/go-scrape-anime/models"
)

// renderTable draws a rounded table. rightAligned lists 1-based column
// numbers for numeric columns.
func renderTable(header []string, rows [][]string, rightAligned ...int) string {
	if len(header) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(tableRow(header))
	for _, r := range rows {
		tw.AppendRow(tableRow(r))
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func tableRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func groupRows(groups []models.TorrentGroup) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		dub := ""
		if g.Dubbed {
			dub = "yes"
		}
		rows = append(rows, []string{
			g.ID,
			g.ReleaseGroup,
			g.AnimeName,
			models.TorrentMetadata{Season: g.Season}.SeasonShort(),
			g.Coverage.String(),
			g.Quality,
			g.AudioLanguage.Display(),
			g.SubtitleLanguage.Display(),
			dub,
			strconv.Itoa(g.Count),
			humanize.Comma(int64(g.TotalSeeders)),
		})
	}
	return rows
}

func renderGroups(groups []models.TorrentGroup) string {
	if len(groups) == 0 {
		return "No torrents found."
	}
	return renderTable(
		[]string{"ID", "Group", "Anime", "Season", "Episodes", "Quality", "Audio", "Subs", "Dub", "Torrents", "Seeders"},
		groupRows(groups),
		10, 11,
	)
}

func renderMembers(members []models.EnrichedTorrent) string {
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		episodes := models.Unknown
		if m.Metadata != nil {
			episodes = m.Metadata.Episodes.String()
		}
		published := ""
		if !m.PublishedAt.IsZero() {
			published = humanize.Time(m.PublishedAt)
		}
		rows = append(rows, []string{
			m.ID,
			m.Title,
			episodes,
			m.Size,
			humanize.Comma(int64(m.Seeders)),
			published,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Episodes", "Size", "Seeders", "Published"},
		rows,
		4, 5,
	)
}
