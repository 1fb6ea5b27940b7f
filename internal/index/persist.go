package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mperelman/chronicle/models"
)

// Save writes the index to path as versioned JSON, creating parent
// directories as needed. The write goes through a temp file and rename so a
// crashed build never leaves a half-written index behind.
func (idx *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing index: %w", err)
	}
	return nil
}

// Load reads a persisted index. A missing, unreadable or version-mismatched
// file yields an error wrapping models.ErrIndexUnavailable; callers decide
// whether that is fatal (CLIs) or a degraded mode (services).
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrIndexUnavailable, path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", models.ErrIndexUnavailable, path, err)
	}
	if idx.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %s has format version %d, want %d", models.ErrIndexUnavailable, path, idx.Version, FormatVersion)
	}
	return &idx, nil
}
