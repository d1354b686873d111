// Package parser turns nyaa.si HTML pages into listings and detail records.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-anime/models"
	"github.com/dustin/go-humanize"
	"github.com/gocolly/colly/v2"
)

// ErrMalformedPage is returned for a detail page without its title panel.
var ErrMalformedPage = errors.New("malformed page")

const (
	listingRowSelector = "table.torrent-list tbody tr"
	dateLayout         = "2006-01-02 15:04"
	minListingColumns  = 8
)

var (
	viewIDPattern     = regexp.MustCompile(`^/view/(\d+)`)
	downloadIDPattern = regexp.MustCompile(`/download/(\d+)\.torrent$`)
	fileSizeSuffix    = regexp.MustCompile(`\s*\([\d.,]+\s*[KMGTP]?i?B\)\s*$`)
)

// ParseSearchPage extracts listing rows in document order. A page without
// a results table yields no rows and no error.
func ParseSearchPage(body []byte, baseURL string) ([]models.Listing, error) {
	doc, resp, err := newDocument(body, baseURL)
	if err != nil {
		return nil, err
	}

	var listings []models.Listing
	doc.Find(listingRowSelector).Each(func(i int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		e := colly.NewHTMLElementFromSelectionNode(resp, s, s.Nodes[0], i)
		if listing, ok := parseRow(e); ok {
			listings = append(listings, listing)
		}
	})
	return listings, nil
}

func parseRow(e *colly.HTMLElement) (models.Listing, bool) {
	cols := e.DOM.ChildrenFiltered("td")
	if cols.Length() < minListingColumns {
		return models.Listing{}, false
	}

	var listing models.Listing

	categoryLink := cols.Eq(0).Find("a").First()
	listing.CategoryName = strings.TrimSpace(categoryLink.AttrOr("title", ""))
	listing.Category = categoryCode(categoryLink.AttrOr("href", ""))

	cols.Eq(1).Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		m := viewIDPattern.FindStringSubmatch(href)
		if m == nil || strings.Contains(href, "comments") {
			return true
		}
		listing.ID = m[1]
		listing.Title = strings.TrimSpace(a.AttrOr("title", ""))
		if listing.Title == "" {
			listing.Title = strings.TrimSpace(a.Text())
		}
		listing.DetailURL = e.Request.AbsoluteURL(href)
		return false
	})

	cols.Eq(2).Find("a").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		switch {
		case strings.HasPrefix(href, "magnet:"):
			listing.MagnetURI = href
		case strings.HasSuffix(href, ".torrent"):
			listing.TorrentURL = e.Request.AbsoluteURL(href)
			if listing.ID == "" {
				if m := downloadIDPattern.FindStringSubmatch(href); m != nil {
					listing.ID = m[1]
				}
			}
		}
	})

	if listing.Title == "" && listing.ID == "" {
		return models.Listing{}, false
	}

	listing.Size = strings.TrimSpace(cols.Eq(3).Text())
	listing.SizeBytes = ParseSize(listing.Size)
	listing.PublishedAt = parsePublished(cols.Eq(4))
	listing.Seeders = ParseIntSafe(cols.Eq(5).Text())
	listing.Leechers = ParseIntSafe(cols.Eq(6).Text())
	listing.Downloads = ParseIntSafe(cols.Eq(7).Text())
	return listing, true
}

// ParseDetailPage extracts the title, info panel fields, description and
// file list from a torrent detail page.
func ParseDetailPage(body []byte, baseURL string) (models.DetailPage, error) {
	doc, _, err := newDocument(body, baseURL)
	if err != nil {
		return models.DetailPage{}, err
	}

	titleSel := doc.Find("h3.panel-title").First()
	if titleSel.Length() == 0 {
		return models.DetailPage{}, fmt.Errorf("%w: no title panel", ErrMalformedPage)
	}

	detail := models.DetailPage{
		Title: collapseSpace(titleSel.Text()),
	}

	doc.Find(".panel-body .row .col-md-1").Each(func(_ int, label *goquery.Selection) {
		value := label.NextFiltered(".col-md-5")
		if value.Length() == 0 {
			return
		}
		switch strings.TrimSpace(label.Text()) {
		case "Submitter:":
			detail.Submitter = collapseSpace(value.Text())
		case "Category:":
			detail.Category = collapseSpace(value.Text())
		case "Info hash:":
			detail.InfoHash = strings.TrimSpace(value.Find("kbd").Text())
			if detail.InfoHash == "" {
				detail.InfoHash = strings.TrimSpace(value.Text())
			}
		}
	})

	detail.Description = strings.TrimSpace(doc.Find("#torrent-description").Text())

	doc.Find(".torrent-file-list li").Each(func(_ int, li *goquery.Selection) {
		// folders have nested lists; only leaves are files
		if li.Find("ul").Length() > 0 {
			return
		}
		item := li.Clone()
		item.Find(".file-size").Remove()
		name := fileSizeSuffix.ReplaceAllString(collapseSpace(item.Text()), "")
		if name != "" {
			detail.Files = append(detail.Files, name)
		}
	})

	return detail, nil
}

// ParseIntSafe parses a count, tolerating thousands separators. Anything
// else yields 0.
func ParseIntSafe(text string) int {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if text == "" {
		return 0
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ParseSize converts a human size such as "1.4 GiB" to bytes, or 0.
func ParseSize(text string) uint64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	n, err := humanize.ParseBytes(text)
	if err != nil {
		return 0
	}
	return n
}

func newDocument(body []byte, baseURL string) (*goquery.Document, *colly.Response, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse base url: %w", err)
	}
	resp := &colly.Response{
		Body:    body,
		Request: &colly.Request{URL: base},
	}
	return doc, resp, nil
}

func parsePublished(cell *goquery.Selection) time.Time {
	if ts, ok := cell.Attr("data-timestamp"); ok {
		if secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
	}
	if t, err := time.Parse(dateLayout, strings.TrimSpace(cell.Text())); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func categoryCode(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("c")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
