package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// State is the persisted "current campaign" consumed by the next scheduled run.
type State struct {
	Campaign  string    `toml:"campaign"`
	BatchSize int       `toml:"batch_size"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// DefaultState derives the initial campaign state from configuration.
func (c *Config) DefaultState() State {
	return State{Campaign: c.Campaign.Default, BatchSize: c.Campaign.BatchSize}
}

// LoadState reads the campaign state file. A missing file yields the
// configured defaults.
func LoadState(path string, fallback State) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fallback, nil
		}
		return State{}, fmt.Errorf("read campaign state: %w", err)
	}
	var state State
	if err := toml.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parse campaign state: %w", err)
	}
	state.Campaign = NormalizeCampaign(state.Campaign)
	if state.Campaign == "" {
		state.Campaign = fallback.Campaign
	}
	if state.BatchSize < 0 {
		state.BatchSize = fallback.BatchSize
	}
	return state, nil
}

// SaveState writes the campaign state atomically.
func SaveState(path string, state State) error {
	state.Campaign = NormalizeCampaign(state.Campaign)
	if state.Campaign == "" {
		return fmt.Errorf("save campaign state: campaign must be set")
	}
	if state.BatchSize < 0 {
		return fmt.Errorf("save campaign state: batch size must be >= 0")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	data, err := toml.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode campaign state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".campaign-*.toml")
	if err != nil {
		return fmt.Errorf("create state temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write campaign state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close campaign state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace campaign state: %w", err)
	}
	return nil
}
