package finalize

import (
	"cmp"
	"slices"
	"strings"

	"clipwise/internal/store"
	"clipwise/internal/vision"
)

// Document is the labels.json payload. Field names are a published contract.
type Document struct {
	AssetID         string               `json:"asset_id"`
	Labels          []store.LabelSummary `json:"labels"`
	ModerationFlags []string             `json:"moderation_flags"`
	DurationMS      int64                `json:"duration_ms"`
}

type labelGroup struct {
	summary store.LabelSummary
	// best is the confidence of the detection that supplied the display name.
	best float64
}

// Normalize merges raw detections into a Document. The output depends only on
// the multiset of detections, never on their order.
func Normalize(assetID string, results *vision.Results, moderationFloor float64) Document {
	doc := Document{AssetID: assetID, Labels: []store.LabelSummary{}, ModerationFlags: []string{}}
	if results == nil {
		return doc
	}
	doc.DurationMS = results.DurationMS

	groups := make(map[string]*labelGroup)
	for _, det := range results.Labels {
		name := strings.TrimSpace(det.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		group, ok := groups[key]
		if !ok {
			groups[key] = &labelGroup{
				summary: store.LabelSummary{
					Name:        name,
					Confidence:  det.Confidence,
					FirstSeenMS: det.TimestampMS,
					LastSeenMS:  det.TimestampMS,
				},
				best: det.Confidence,
			}
			continue
		}
		s := &group.summary
		if det.Confidence > group.best || (det.Confidence == group.best && name < s.Name) {
			s.Name = name
			group.best = det.Confidence
		}
		s.Confidence = max(s.Confidence, det.Confidence)
		s.FirstSeenMS = min(s.FirstSeenMS, det.TimestampMS)
		s.LastSeenMS = max(s.LastSeenMS, det.TimestampMS)
	}
	for _, group := range groups {
		doc.Labels = append(doc.Labels, group.summary)
	}
	slices.SortFunc(doc.Labels, func(a, b store.LabelSummary) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	flags := make(map[string]struct{})
	for _, det := range results.Moderation {
		if det.Confidence < moderationFloor {
			continue
		}
		for _, name := range []string{det.Name, det.ParentName} {
			if name = strings.TrimSpace(name); name != "" {
				flags[name] = struct{}{}
			}
		}
	}
	for name := range flags {
		doc.ModerationFlags = append(doc.ModerationFlags, name)
	}
	slices.Sort(doc.ModerationFlags)
	return doc
}
