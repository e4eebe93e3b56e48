package dedup_test

import (
	"context"
	"errors"
	"testing"

	"clipwise/internal/catalog"
	"clipwise/internal/dedup"
	"clipwise/internal/store"
	"clipwise/internal/testsupport"
)

func TestAdmitDropsIngestedAndRepeatedAssets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 4, "wikimedia", "archive")
	if err := st.InsertIngestion(ctx, &store.IngestionRecord{
		AssetID:     "wikimedia:1",
		Source:      "wikimedia",
		ExternalID:  "1",
		Campaign:    "nature",
		RunID:       run.ID,
		DownloadURL: "https://example.test/1.webm",
		RawPath:     "media-raw/video/wikimedia/nature/t/one-abc.webm",
	}); err != nil {
		t.Fatalf("InsertIngestion: %v", err)
	}

	candidates := []catalog.CandidateAsset{
		{Source: "wikimedia", ExternalID: "1"},
		{Source: "wikimedia", ExternalID: "2"},
		{Source: "archive", ExternalID: "1"},
		{Source: "wikimedia", ExternalID: "2"},
	}
	admitted, err := dedup.New(st).Admit(ctx, candidates)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	got := make([]string, 0, len(admitted))
	for _, c := range admitted {
		got = append(got, c.AssetID())
	}
	want := []string{"wikimedia:2", "archive:1"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Admit = %v, want %v", got, want)
	}
}

type failingLookup struct{}

func (failingLookup) ExistingAssetIDs(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("database locked")
}

func TestAdmitPropagatesLookupErrors(t *testing.T) {
	_, err := dedup.New(failingLookup{}).Admit(context.Background(), []catalog.CandidateAsset{{Source: "a", ExternalID: "1"}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAdmitEmptyInput(t *testing.T) {
	admitted, err := dedup.New(failingLookup{}).Admit(context.Background(), nil)
	if err != nil || admitted != nil {
		t.Fatalf("expected nil, nil; got %v, %v", admitted, err)
	}
}
