package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"clipwise/internal/logging"
)

const SourceArchive = "archive"

var archiveVideoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".ogv":  "video/ogg",
}

// Archive searches the Internet Archive movies collection.
type Archive struct {
	client  *Client
	baseURL string
	logger  *slog.Logger
}

// NewArchive builds an adapter for the Internet Archive at baseURL.
func NewArchive(client *Client, baseURL string, logger *slog.Logger) *Archive {
	return &Archive{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logging.NewComponentLogger(logger, "catalog.archive"),
	}
}

func (a *Archive) Name() string { return SourceArchive }

type archiveSearchResponse struct {
	Response struct {
		Docs []archiveDoc `json:"docs"`
	} `json:"response"`
}

type archiveDoc struct {
	Identifier string         `json:"identifier"`
	Title      flexibleString `json:"title"`
	LicenseURL flexibleString `json:"licenseurl"`
	Date       flexibleString `json:"date"`
}

type archiveMetadata struct {
	Files []struct {
		Name   string         `json:"name"`
		Format string         `json:"format"`
		Size   flexibleString `json:"size"`
	} `json:"files"`
}

// Search returns Creative Commons movies whose title matches the keyword. The
// download URL of each hit is resolved from its item metadata.
func (a *Archive) Search(ctx context.Context, query Query) ([]CandidateAsset, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:(%s) AND mediatype:(movies) AND licenseurl:*creativecommons*", strings.TrimSpace(query.Keyword)))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "licenseurl")
	params.Add("fl[]", "date")
	params.Set("rows", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(max(query.Page, 0)+1))
	params.Set("output", "json")

	var resp archiveSearchResponse
	if err := a.client.GetJSON(ctx, a.baseURL+"/advancedsearch.php?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	candidates := make([]CandidateAsset, 0, len(resp.Response.Docs))
	for _, doc := range resp.Response.Docs {
		id := strings.TrimSpace(doc.Identifier)
		if id == "" || !IsOpenLicense(string(doc.LicenseURL)) {
			continue
		}
		candidate, ok, err := a.resolve(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.WarnWithContext(a.logger, "archive metadata lookup failed", "catalog_metadata_failed",
				logging.String("identifier", id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item skipped for this search"),
			)
			continue
		}
		if !ok {
			continue
		}
		candidate.Title = string(doc.Title)
		if candidate.Title == "" {
			candidate.Title = id
		}
		candidate.License = string(doc.LicenseURL)
		candidate.CapturedAt = parseCatalogDate(string(doc.Date))
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (a *Archive) resolve(ctx context.Context, identifier string) (CandidateAsset, bool, error) {
	var meta archiveMetadata
	if err := a.client.GetJSON(ctx, a.baseURL+"/metadata/"+url.PathEscape(identifier), &meta); err != nil {
		return CandidateAsset{}, false, err
	}
	for _, file := range meta.Files {
		mime, ok := archiveVideoTypes[strings.ToLower(path.Ext(file.Name))]
		if !ok {
			continue
		}
		size, _ := strconv.ParseInt(string(file.Size), 10, 64)
		return CandidateAsset{
			Source:      SourceArchive,
			ExternalID:  identifier,
			DownloadURL: a.baseURL + "/download/" + url.PathEscape(identifier) + "/" + escapeArchivePath(file.Name),
			MIMEType:    mime,
			SizeBytes:   size,
		}, true, nil
	}
	return CandidateAsset{}, false, nil
}

func escapeArchivePath(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
