package catalog

import (
	"context"
	"strings"
	"time"
)

// CandidateAsset is a video found in a catalog that may be ingested.
type CandidateAsset struct {
	Source      string
	ExternalID  string
	DownloadURL string
	Title       string
	License     string
	CapturedAt  time.Time
	MIMEType    string
	SizeBytes   int64
}

// AssetID returns the stable identifier shared by every record describing the
// asset.
func (c CandidateAsset) AssetID() string {
	return AssetID(c.Source, c.ExternalID)
}

// AssetID composes an asset identifier from a source name and catalog id.
func AssetID(source, externalID string) string {
	return strings.TrimSpace(source) + ":" + strings.TrimSpace(externalID)
}

// Query selects one page of catalog search results. Page is zero-based.
type Query struct {
	Keyword string
	Page    int
	Limit   int
}

// Source is a catalog adapter.
type Source interface {
	Name() string
	Search(ctx context.Context, query Query) ([]CandidateAsset, error)
}
