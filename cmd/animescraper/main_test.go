package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-anime/cache"
	"github.com/aluiziolira/go-scrape-anime/config"
	"github.com/aluiziolira/go-scrape-anime/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCategoriesCommand(t *testing.T) {
	out, err := execute(t, "categories")
	require.NoError(t, err)
	for _, name := range config.CategoryNames() {
		require.Contains(t, out, name)
	}
	require.Contains(t, out, "1_2")
}

func TestSearchRequiresTerm(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
}

func TestSearchRejectsUnknownLanguage(t *testing.T) {
	_, err := execute(t, "search", "frieren", "--cache-dir", t.TempDir(), "--audio", "klingon")
	require.ErrorContains(t, err, "unknown language")
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_pages = 7
workers = 3
category = "anime_raw"
item_timeout = "5s"
`), 0o644))
	t.Setenv("ANIME_SCRAPER_WORKERS", "5")
	t.Setenv("ANIME_SCRAPER_PAGES", "")

	cf := &configFlags{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cf.register(flags)
	require.NoError(t, flags.Parse([]string{"--pages", "9", "--failed-policy", "TITLE"}))

	cfg, err := loadConfig(&rootOptions{configPath: path, verbose: true}, flags, cf)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.MaxPages)
	require.Equal(t, 5, cfg.Workers)
	require.Equal(t, "anime_raw", cfg.Category)
	require.Equal(t, 5*time.Second, cfg.ItemTimeout)
	require.Equal(t, config.PolicyTitle, cfg.FailedItemPolicy)
	require.True(t, cfg.Verbose)
	require.True(t, cfg.FetchSubmitters)
}

func TestLoadConfigRejectsInvalidFlags(t *testing.T) {
	cf := &configFlags{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cf.register(flags)
	require.NoError(t, flags.Parse([]string{"--failed-policy", "drop"}))

	_, err := loadConfig(&rootOptions{}, flags, cf)
	require.ErrorContains(t, err, "failed item policy")
}

func TestCacheClearCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.New(dir, time.Hour)
	require.NoError(t, err)
	_, err = store.GetOrFetch(context.Background(), cache.Request{URL: "https://nyaa.si/view/1"}, func(ctx context.Context) (*cache.Response, error) {
		return &cache.Response{StatusCode: http.StatusOK, Body: []byte("<html></html>")}, nil
	})
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	out, err := execute(t, "cache", "clear", "--cache-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, dir)

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRenderGroups(t *testing.T) {
	require.Equal(t, "No torrents found.", renderGroups(nil))

	groups := []models.TorrentGroup{{
		ID:               "00000000000000aa",
		ReleaseGroup:     "SubsPlease",
		AnimeName:        "Sousou no Frieren",
		Season:           1,
		Coverage:         models.EpisodeRange{First: 1, Last: 12},
		Quality:          "1080p",
		AudioLanguage:    models.LangJapanese,
		SubtitleLanguage: models.LangEnglish,
		Count:            12,
		TotalSeeders:     12345,
	}}
	rows := groupRows(groups)
	require.Equal(t, []string{
		"00000000000000aa", "SubsPlease", "Sousou no Frieren", "S1", "Episodes 1-12",
		"1080p", "Japanese", "English", "", "12", "12,345",
	}, rows[0])

	rendered := renderGroups(groups)
	require.Contains(t, rendered, "Sousou no Frieren")
	require.True(t, strings.Count(rendered, "\n") >= 4)
}

func TestPrintMembersUnknownGroup(t *testing.T) {
	var out bytes.Buffer
	err := printMembers(&out, nil, "missing")
	require.ErrorContains(t, err, "no group")
}

func TestParseLanguageFlag(t *testing.T) {
	lang, err := parseLanguageFlag("audio", "English")
	require.NoError(t, err)
	require.Equal(t, models.LangEnglish, lang)

	lang, err = parseLanguageFlag("sub", "")
	require.NoError(t, err)
	require.Equal(t, models.LangUnknown, lang)
}

func TestRenderTableAlignsNumericColumns(t *testing.T) {
	require.Empty(t, renderTable(nil, nil))

	out := renderTable([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"bbbb", "22"}}, 2)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 6)
	require.Contains(t, lines[3], "│ a    │     1 │")
	require.Contains(t, lines[4], "│ bbbb │    22 │")
}

const localSearchRow = `<tr>
<td><a href="/?c=1_2" title="Anime - English-translated"></a></td>
<td colspan="2"><a href="/view/%[1]s" title="%[2]s">%[2]s</a></td>
<td><a href="/download/%[1]s.torrent"></a><a href="magnet:?xt=urn:btih:%[1]s"></a></td>
<td>1.0 GiB</td>
<td data-timestamp="1696003200">2023-09-29 16:00</td>
<td>%[3]d</td>
<td>1</td>
<td>10</td>
</tr>`

func TestSearchCommandAgainstLocalOrigin(t *testing.T) {
	titles := map[string]string{
		"1": "[SubsPlease] Sousou no Frieren - 01 (1080p)",
		"2": "[SubsPlease] Sousou no Frieren - 02 (1080p)",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			body := `<html><body><table class="torrent-list"><tbody>`
			if r.URL.Query().Get("p") == "1" {
				body += fmt.Sprintf(localSearchRow, "1", titles["1"], 20)
				body += fmt.Sprintf(localSearchRow, "2", titles["2"], 10)
			}
			fmt.Fprint(w, body+`</tbody></table></body></html>`)
		case strings.HasPrefix(r.URL.Path, "/view/"):
			title, ok := titles[strings.TrimPrefix(r.URL.Path, "/view/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `<html><body><div class="panel"><div class="panel-heading"><h3 class="panel-title">%s</h3></div><div class="panel-body"></div></div></body></html>`, title)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	output := filepath.Join(dir, "torrents.csv")
	out, err := execute(t, "search", "frieren",
		"--base-url", srv.URL,
		"--cache-dir", filepath.Join(dir, "cache"),
		"--pages", "2",
		"--rps", "0",
		"--max-retries", "0",
		"--output", output,
	)
	require.NoError(t, err)
	require.Contains(t, out, "Sousou no Frieren")
	require.Contains(t, out, "Episodes 1-2")
	require.Contains(t, out, "Search complete")
	require.NotContains(t, out, "Skipped")

	info, err := os.Stat(output)
	require.NoError(t, err)
	require.NotZero(t, info.Size())
}
