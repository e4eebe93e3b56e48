package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"clipwise/internal/catalog"
)

const wikimediaFixture = `{
  "batchcomplete": true,
  "query": {
    "pages": [
      {"pageid": 202, "title": "File:Second.webm", "index": 2, "imageinfo": [{"url": "https://upload.example/second.webm", "size": 2048, "mime": "video/webm", "extmetadata": {"LicenseShortName": {"value": "CC BY-SA 4.0"}, "DateTimeOriginal": {"value": "2021-06-01 10:00:00"}}}]},
      {"pageid": 101, "title": "File:First.ogv", "index": 1, "imageinfo": [{"url": "https://upload.example/first.ogv", "size": 1024, "mime": "video/ogg", "extmetadata": {"LicenseShortName": {"value": "Public domain"}}}]},
      {"pageid": 303, "title": "File:Photo.jpg", "index": 3, "imageinfo": [{"url": "https://upload.example/photo.jpg", "size": 10, "mime": "image/jpeg", "extmetadata": {"LicenseShortName": {"value": "CC0"}}}]},
      {"pageid": 404, "title": "File:Closed.webm", "index": 4, "imageinfo": [{"url": "https://upload.example/closed.webm", "size": 10, "mime": "video/webm", "extmetadata": {"LicenseShortName": {"value": "All rights reserved"}}}]},
      {"pageid": 505, "title": "File:NoInfo.webm", "index": 5}
    ]
  }
}`

func TestWikimediaSearchNormalizesPages(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"gsrsearch":    q.Get("gsrsearch"),
			"gsrnamespace": q.Get("gsrnamespace"),
			"gsroffset":    q.Get("gsroffset"),
			"gsrlimit":     q.Get("gsrlimit"),
			"iiprop":       q.Get("iiprop"),
		}
		if r.Header.Get("User-Agent") != "clipwise-test" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wikimediaFixture))
	}))
	defer srv.Close()

	client := catalog.NewClient(catalog.ClientOptions{UserAgent: "clipwise-test"}, nil)
	source := catalog.NewWikimedia(client, srv.URL)

	got, err := source.Search(context.Background(), catalog.Query{Keyword: "nature", Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery["gsrsearch"] != "nature filetype:video" || gotQuery["gsrnamespace"] != "6" {
		t.Fatalf("unexpected search params: %v", gotQuery)
	}
	if gotQuery["gsroffset"] != "20" || gotQuery["gsrlimit"] != "10" {
		t.Fatalf("unexpected paging params: %v", gotQuery)
	}
	if gotQuery["iiprop"] != "url|size|mime|extmetadata" {
		t.Fatalf("unexpected iiprop: %q", gotQuery["iiprop"])
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 admitted candidates, got %d: %+v", len(got), got)
	}
	first := got[0]
	if first.AssetID() != "wikimedia:101" {
		t.Fatalf("expected search order preserved, got %s first", first.AssetID())
	}
	if first.MIMEType != "video/ogg" || first.SizeBytes != 1024 || first.License != "Public domain" {
		t.Fatalf("unexpected first candidate: %+v", first)
	}
	second := got[1]
	if second.CapturedAt.IsZero() || second.CapturedAt.Year() != 2021 {
		t.Fatalf("expected captured date parsed, got %v", second.CapturedAt)
	}
	if second.Title != "File:Second.webm" || second.DownloadURL != "https://upload.example/second.webm" {
		t.Fatalf("unexpected second candidate: %+v", second)
	}
}

func TestIsOpenLicense(t *testing.T) {
	tests := []struct {
		values []string
		want   bool
	}{
		{values: []string{"CC BY 4.0"}, want: true},
		{values: []string{"cc-by-sa-3.0"}, want: true},
		{values: []string{"CC0"}, want: true},
		{values: []string{"Public domain"}, want: true},
		{values: []string{"https://creativecommons.org/licenses/by/4.0/"}, want: true},
		{values: []string{"", "pd-usgov"}, want: true},
		{values: []string{"All rights reserved"}, want: false},
		{values: []string{"", " "}, want: false},
	}
	for _, tc := range tests {
		if got := catalog.IsOpenLicense(tc.values...); got != tc.want {
			t.Fatalf("IsOpenLicense(%q) = %v, want %v", tc.values, got, tc.want)
		}
	}
}
