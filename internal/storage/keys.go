package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"clipwise/internal/textutil"
)

const (
	RawZone       = "media-raw/video"
	ProcessedZone = "media-processed/video"

	labelsSuffix    = "_labels.json"
	timestampLayout = "20060102T150405Z"
	hashPrefixLen   = 12
)

// RawKey builds the content-addressed, timestamp-qualified key for a download:
// media-raw/video/<source>/<campaign>/<YYYYMMDDTHHMMSSZ>/<stem>-<sha12><ext>.
func RawKey(source, campaign string, at time.Time, title, sha256, ext string) string {
	hash := strings.ToLower(sha256)
	if len(hash) > hashPrefixLen {
		hash = hash[:hashPrefixLen]
	}
	name := textutil.FileStem(title) + "-" + hash + normalizeExt(ext)
	return path.Join(
		RawZone,
		textutil.SanitizeToken(source),
		textutil.SanitizeToken(campaign),
		at.UTC().Format(timestampLayout),
		name,
	)
}

// ProcessedKey maps a raw key onto its labels.json location in the processed
// zone, keeping the source, campaign, and timestamp segments.
func ProcessedKey(rawKey string) (string, error) {
	rest, ok := strings.CutPrefix(rawKey, RawZone+"/")
	if !ok {
		return "", fmt.Errorf("key %q is not in the raw zone", rawKey)
	}
	dir, file := path.Split(rest)
	if dir == "" || file == "" {
		return "", fmt.Errorf("key %q has no object name", rawKey)
	}
	stem := strings.TrimSuffix(file, path.Ext(file))
	return path.Join(ProcessedZone, dir, stem+labelsSuffix), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
