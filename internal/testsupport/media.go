package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"clipwise/internal/catalog"
)

// MediaFile is one downloadable body served by a MediaServer.
type MediaFile struct {
	Body        []byte
	ContentType string
	// Status overrides the response code; 2xx codes still serve Body.
	Status int
	// FailFirst answers this many requests with 503 before serving the body.
	FailFirst int
}

// MediaServer serves fake catalog downloads over HTTP.
type MediaServer struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string]*MediaFile
	hits  map[string]int
}

// NewMediaServer starts a server and registers its shutdown with t.
func NewMediaServer(t testing.TB) *MediaServer {
	t.Helper()
	m := &MediaServer{files: make(map[string]*MediaFile), hits: make(map[string]int)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// Add registers a file at path and returns its absolute URL.
func (m *MediaServer) Add(path string, file MediaFile) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &file
	return m.URL + path
}

// Hits reports how many requests path received.
func (m *MediaServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// Candidate registers a small video for source/externalID and returns the
// matching catalog candidate.
func (m *MediaServer) Candidate(source, externalID, title string) catalog.CandidateAsset {
	path := "/" + source + "/" + externalID + ".webm"
	url := m.Add(path, MediaFile{Body: []byte("webm:" + source + ":" + externalID), ContentType: "video/webm"})
	return catalog.CandidateAsset{
		Source:      source,
		ExternalID:  externalID,
		DownloadURL: url,
		Title:       title,
		License:     "CC BY 4.0",
		MIMEType:    "video/webm",
	}
}

func (m *MediaServer) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.hits[r.URL.Path]++
	hits := m.hits[r.URL.Path]
	file, ok := m.files[r.URL.Path]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if hits <= file.FailFirst {
		http.Error(w, "try again", http.StatusServiceUnavailable)
		return
	}
	if file.Status >= http.StatusMultipleChoices {
		http.Error(w, http.StatusText(file.Status), file.Status)
		return
	}
	if file.ContentType != "" {
		w.Header().Set("Content-Type", file.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Body)))
	if file.Status != 0 {
		w.WriteHeader(file.Status)
	}
	_, _ = w.Write(file.Body)
}
