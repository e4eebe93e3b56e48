package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"clipwise/internal/config"
)

func TestLoadStateFallsBackWhenMissing(t *testing.T) {
	fallback := config.State{Campaign: "nature", BatchSize: 4}
	state, err := config.LoadState(filepath.Join(t.TempDir(), "campaign.toml"), fallback)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state != fallback {
		t.Fatalf("expected fallback state, got %+v", state)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "campaign.toml")
	if err := config.SaveState(path, config.State{Campaign: " Tech ", BatchSize: 8}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	state, err := config.LoadState(path, config.State{Campaign: "nature", BatchSize: 4})
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.Campaign != "tech" || state.BatchSize != 8 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be stamped")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestSaveStateRejectsEmptyCampaign(t *testing.T) {
	if err := config.SaveState(filepath.Join(t.TempDir(), "campaign.toml"), config.State{}); err == nil {
		t.Fatal("expected error for empty campaign")
	}
}
