package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"

	"github.com/agentstate/agentstate/pkg/types"
)

const manifestFile = "manifest.json"

// loadManifest reads manifest.json from dir, returning an empty
// Manifest if the file does not yet exist.
func loadManifest(dir string) (types.Manifest, error) {
	path := filepath.Join(dir, manifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Manifest{}, nil
		}
		return types.Manifest{}, fmt.Errorf("wal: reading manifest %s: %w", path, err)
	}
	var m types.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return types.Manifest{}, fmt.Errorf("wal: parsing manifest %s: %w", path, err)
	}
	return m, nil
}

// saveManifest atomically replaces manifest.json in dir, so a crash
// mid-write never leaves a torn manifest behind.
func saveManifest(dir string, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("wal: marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFile)
	if err := natomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("wal: writing manifest %s: %w", path, err)
	}
	return nil
}
