package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipwise/internal/catalog"
)

func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !strings.Contains(q.Get("q"), "title:(travel)") || !strings.Contains(q.Get("q"), "mediatype:(movies)") {
			t.Errorf("unexpected query %q", q.Get("q"))
		}
		if q.Get("page") != "1" || q.Get("output") != "json" {
			t.Errorf("unexpected paging %v", q)
		}
		_, _ = w.Write([]byte(`{"response": {"docs": [
			{"identifier": "street_walk", "title": "Street Walk", "licenseurl": "http://creativecommons.org/licenses/by/3.0/", "date": "2019-04-02T00:00:00Z"},
			{"identifier": "audio_only", "title": ["Audio Only"], "licenseurl": "http://creativecommons.org/licenses/by/3.0/"},
			{"identifier": "broken_item", "title": "Broken", "licenseurl": "http://creativecommons.org/publicdomain/zero/1.0/"},
			{"identifier": "closed_item", "title": "Closed", "licenseurl": "https://example.com/terms"}
		]}}`))
	})
	mux.HandleFunc("/metadata/street_walk", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [
			{"name": "street_walk.png", "format": "PNG", "size": "100"},
			{"name": "street walk.mp4", "format": "MPEG4", "size": "4096"},
			{"name": "street_walk.ogv", "format": "Ogg Video", "size": "2048"}
		]}`))
	})
	mux.HandleFunc("/metadata/audio_only", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files": [{"name": "track.mp3", "format": "VBR MP3", "size": "100"}]}`))
	})
	mux.HandleFunc("/metadata/broken_item", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func TestArchiveSearchResolvesDownloads(t *testing.T) {
	srv := newArchiveServer(t)
	defer srv.Close()

	client := catalog.NewClient(catalog.ClientOptions{MaxAttempts: 1}, nil)
	source := catalog.NewArchive(client, srv.URL, nil)

	got, err := source.Search(context.Background(), catalog.Query{Keyword: "travel", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(got), got)
	}
	c := got[0]
	if c.AssetID() != "archive:street_walk" {
		t.Fatalf("unexpected asset id %q", c.AssetID())
	}
	if c.DownloadURL != srv.URL+"/download/street_walk/street%20walk.mp4" {
		t.Fatalf("unexpected download url %q", c.DownloadURL)
	}
	if c.MIMEType != "video/mp4" || c.SizeBytes != 4096 {
		t.Fatalf("unexpected media fields: %+v", c)
	}
	if c.Title != "Street Walk" || c.CapturedAt.Year() != 2019 {
		t.Fatalf("unexpected descriptive fields: %+v", c)
	}
}
