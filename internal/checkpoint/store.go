// Package checkpoint persists translation progress so an interrupted run
// can resume without re-paying completed work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/a-schmidtlab/caption-translator/pkg/file"
	"github.com/a-schmidtlab/caption-translator/pkg/log"
)

// Record is one durable snapshot of a run. The JSON layout is stable and
// shared with the resume path.
type Record struct {
	Timestamp     time.Time         `json:"timestamp"`
	ProcessedRows int               `json:"processedRows"`
	Translations  map[string]string `json:"translations"`
	TotalRows     int               `json:"totalRows"`
	SourceFile    string            `json:"sourceFile"`
}

// Store reads and writes checkpoint records under a single directory.
// Records are keyed by the input's base name, not its absolute path, so a
// checkpoint survives relocating the project.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// PathFor returns the checkpoint path for the given input file.
func (s *Store) PathFor(inputPath string) string {
	return filepath.Join(s.dir, file.BaseName(inputPath)+".checkpoint.json")
}

// Save writes the record atomically: temp sibling file, read-back
// validation, then rename over the target. A crash mid-write leaves the
// previous checkpoint intact.
func (s *Store) Save(inputPath string, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("checkpoint record is nil")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	target := s.PathFor(inputPath)
	tmp := target + ".tmp"

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint temp file: %w", err)
	}

	// Read back before renaming so a torn write never replaces a good
	// checkpoint.
	written, err := os.ReadFile(tmp)
	if err != nil {
		return fmt.Errorf("failed to re-read checkpoint temp file: %w", err)
	}
	var check Record
	if err := json.Unmarshal(written, &check); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("checkpoint temp file failed validation: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	log.Debug("Checkpoint saved: %s (%d/%d)", target, rec.ProcessedRows, rec.TotalRows)
	return nil
}

// Load returns the checkpoint for the given input, or nil when none
// exists. A corrupt record is logged and treated as absent rather than
// failing the run.
func (s *Store) Load(inputPath string) (*Record, error) {
	target := s.PathFor(inputPath)

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn("Ignoring corrupt checkpoint %s: %v", target, err)
		return nil, nil
	}
	if rec.Translations == nil {
		rec.Translations = make(map[string]string)
	}
	return &rec, nil
}

// Delete removes the checkpoint after the output has been written
// successfully. Missing files are not an error.
func (s *Store) Delete(inputPath string) error {
	err := os.Remove(s.PathFor(inputPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
