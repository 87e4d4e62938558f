package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	ErrEmptyArtifact = errors.New("artifact: empty artifact")
	ErrInvalidActor  = errors.New("artifact: invalid actor directory name")
	ErrNameCollision = errors.New("artifact: document and recording share a file name")
)

const ManifestName = "manifest.toml"

// Layout is the host-side output tree: one directory per actor under Root.
type Layout struct {
	Root string
}

func (l Layout) ActorDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidActor, name)
	}
	return filepath.Join(l.Root, name), nil
}

// Ensure creates the actor directory and returns it.
func (l Layout) Ensure(name string) (string, error) {
	dir, err := l.ActorDir(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: create %s: %w", dir, err)
	}
	return dir, nil
}

// CheckDistinct rejects a document and recording that would land on the
// same file inside an actor directory.
func CheckDistinct(document, recording string) error {
	if filepath.Base(document) == filepath.Base(recording) {
		return fmt.Errorf("%w: %s and %s", ErrNameCollision, document, recording)
	}
	return nil
}

func (l Layout) ManifestPath() string {
	return filepath.Join(l.Root, ManifestName)
}

// Digest returns the hex BLAKE3-256 digest and size of the file at path.
func Digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("artifact: digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Collected describes the artifacts copied out of one actor.
type Collected struct {
	Actor           string `toml:"actor"`
	Document        string `toml:"document"`
	DocumentDigest  string `toml:"document_blake3"`
	DocumentSize    int64  `toml:"document_size"`
	Recording       string `toml:"recording"`
	RecordingDigest string `toml:"recording_blake3"`
	RecordingSize   int64  `toml:"recording_size"`
}

// Collect digests a fetched document and recording. Either file being
// empty is ErrEmptyArtifact.
func Collect(actorName, document, recording string) (Collected, error) {
	out := Collected{Actor: actorName, Document: document, Recording: recording}
	var err error
	out.DocumentDigest, out.DocumentSize, err = Digest(document)
	if err != nil {
		return Collected{}, err
	}
	if out.DocumentSize == 0 {
		return Collected{}, fmt.Errorf("%w: %s document %s", ErrEmptyArtifact, actorName, document)
	}
	out.RecordingDigest, out.RecordingSize, err = Digest(recording)
	if err != nil {
		return Collected{}, err
	}
	if out.RecordingSize == 0 {
		return Collected{}, fmt.Errorf("%w: %s recording %s", ErrEmptyArtifact, actorName, recording)
	}
	return out, nil
}
