package catalog

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const SourceWikimedia = "wikimedia"

// Wikimedia searches the File namespace of Wikimedia Commons.
type Wikimedia struct {
	client  *Client
	baseURL string
}

// NewWikimedia builds an adapter for the MediaWiki API at baseURL.
func NewWikimedia(client *Client, baseURL string) *Wikimedia {
	return &Wikimedia{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (w *Wikimedia) Name() string { return SourceWikimedia }

type wikimediaResponse struct {
	Query struct {
		Pages []wikimediaPage `json:"pages"`
	} `json:"query"`
}

type wikimediaPage struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Index     int    `json:"index"`
	ImageInfo []struct {
		URL         string           `json:"url"`
		Size        int64            `json:"size"`
		Mime        string           `json:"mime"`
		ExtMetadata wikimediaMetaMap `json:"extmetadata"`
	} `json:"imageinfo"`
}

type wikimediaMetaItem struct {
	Value any `json:"value"`
}

type wikimediaMetaMap map[string]wikimediaMetaItem

func (m wikimediaMetaMap) get(key string) string {
	item, ok := m[key]
	if !ok {
		return ""
	}
	switch v := item.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Search returns openly licensed videos matching the keyword.
func (w *Wikimedia) Search(ctx context.Context, query Query) ([]CandidateAsset, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	params.Set("generator", "search")
	params.Set("gsrsearch", strings.TrimSpace(query.Keyword)+" filetype:video")
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", strconv.Itoa(limit))
	params.Set("gsroffset", strconv.Itoa(max(query.Page, 0)*limit))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|size|mime|extmetadata")

	var resp wikimediaResponse
	if err := w.client.GetJSON(ctx, w.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	pages := resp.Query.Pages
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	candidates := make([]CandidateAsset, 0, len(pages))
	for _, page := range pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		if !strings.HasPrefix(strings.ToLower(info.Mime), "video/") || info.URL == "" {
			continue
		}
		meta := info.ExtMetadata
		shortName := meta.get("LicenseShortName")
		license := meta.get("License")
		if !IsOpenLicense(shortName, license) {
			continue
		}
		if shortName == "" {
			shortName = license
		}
		candidates = append(candidates, CandidateAsset{
			Source:      SourceWikimedia,
			ExternalID:  strconv.FormatInt(page.PageID, 10),
			DownloadURL: info.URL,
			Title:       page.Title,
			License:     shortName,
			CapturedAt:  parseCatalogDate(meta.get("DateTimeOriginal")),
			MIMEType:    strings.ToLower(info.Mime),
			SizeBytes:   info.Size,
		})
	}
	return candidates, nil
}

var catalogDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseCatalogDate accepts the loose date formats catalogs return and yields
// the zero time when nothing matches.
func parseCatalogDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range catalogDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
