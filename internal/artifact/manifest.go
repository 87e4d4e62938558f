package artifact

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Manifest summarizes one scenario run for later inspection.
type Manifest struct {
	RunID        string      `toml:"run_id"`
	StartedAt    time.Time   `toml:"started_at"`
	FinishedAt   time.Time   `toml:"finished_at"`
	DocumentPath string      `toml:"document_path"`
	TypingDelay  string      `toml:"typing_delay"`
	Converged    bool        `toml:"converged"`
	Failure      string      `toml:"failure,omitempty"`
	Actors       []Collected `toml:"actors"`
}

func WriteManifest(layout Layout, m Manifest) (string, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("artifact: encode manifest: %w", err)
	}
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", layout.Root, err)
	}
	path := layout.ManifestPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write manifest: %w", err)
	}
	return path, nil
}

func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("artifact: read manifest (%s): %w", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("artifact: parse manifest (%s): %w", path, err)
	}
	return m, nil
}
