package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/agentstate/agentstate/pkg/types"
)

const (
	objectsFile     = "objects.ndjson"
	leasesFile      = "leases.ndjson"
	idempotencyFile = "idempotency.ndjson"
	metaFile        = "snapshot.meta"
)

// Meta is the recorded content of snapshot.meta. Bookmarks is keyed by
// namespace (including the reserved lease namespace), since each
// namespace keeps an independent commit_seq counter.
type Meta struct {
	ID        string            `json:"id"`
	Bookmarks map[string]uint64 `json:"bookmarks"`
	CreatedAt time.Time         `json:"created_at"`
	Checksums map[string]uint64 `json:"checksums"`
}

// Source supplies the live data a snapshot captures. Implemented by
// pkg/engine's snapshotSource over its heap (objects), lease table
// (leases), and idempotency cache (cache entries); pkg/engine's
// coordinator composes them behind a single point-in-time pause.
type Source interface {
	SnapshotObjects() ([]types.Object, error)
	SnapshotLeases() ([]types.Lease, error)
	SnapshotIdempotency() ([]types.IdempotencyEntry, error)
}

// Store manages snapshot directories under a root snapshots/ dir.
type Store struct {
	root string
}

func NewStore(dataDir string) *Store {
	return &Store{root: filepath.Join(dataDir, "snapshots")}
}

// Create captures src at the given per-namespace commit_seq bookmarks
// into a new snapshot directory named id, writing to a temporary
// directory and promoting it atomically via os.Rename on success.
func (s *Store) Create(id string, bookmarks map[string]uint64, src Source) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating root %s: %w", s.root, err)
	}
	tmpDir := filepath.Join(s.root, ".tmp-"+id)
	finalDir := filepath.Join(s.root, id)

	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("snapshot: clearing stale tmp dir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("snapshot: creating tmp dir: %w", err)
	}

	objects, err := src.SnapshotObjects()
	if err != nil {
		return fmt.Errorf("snapshot: reading objects: %w", err)
	}
	leases, err := src.SnapshotLeases()
	if err != nil {
		return fmt.Errorf("snapshot: reading leases: %w", err)
	}
	idem, err := src.SnapshotIdempotency()
	if err != nil {
		return fmt.Errorf("snapshot: reading idempotency entries: %w", err)
	}

	checksums := map[string]uint64{}

	sum, err := writeNDJSON(filepath.Join(tmpDir, objectsFile), objects)
	if err != nil {
		return err
	}
	checksums[objectsFile] = sum

	sum, err = writeNDJSON(filepath.Join(tmpDir, leasesFile), leases)
	if err != nil {
		return err
	}
	checksums[leasesFile] = sum

	sum, err = writeNDJSON(filepath.Join(tmpDir, idempotencyFile), idem)
	if err != nil {
		return err
	}
	checksums[idempotencyFile] = sum

	meta := Meta{ID: id, Bookmarks: bookmarks, CreatedAt: time.Now(), Checksums: checksums}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshaling meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, metaFile), metaBytes, 0o644); err != nil {
		return fmt.Errorf("snapshot: writing meta: %w", err)
	}

	if err := os.RemoveAll(finalDir); err != nil {
		return fmt.Errorf("snapshot: clearing previous %s: %w", finalDir, err)
	}
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return fmt.Errorf("snapshot: promoting %s: %w", tmpDir, err)
	}
	return nil
}

// writeNDJSON writes one JSON object per line and returns an xxhash64
// checksum over the full file contents.
func writeNDJSON[T any](path string, items []T) (uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("snapshot: creating %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	w := bufio.NewWriter(f)
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return 0, fmt.Errorf("snapshot: marshaling entry for %s: %w", path, err)
		}
		b = append(b, '\n')
		if _, err := h.Write(b); err != nil {
			return 0, err
		}
		if _, err := w.Write(b); err != nil {
			return 0, fmt.Errorf("snapshot: writing %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("snapshot: flushing %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// BookmarkOf returns the per-namespace commit_seq bookmarks snapshot
// id was taken at, without restoring any of its contents.
func (s *Store) BookmarkOf(id string) (map[string]uint64, error) {
	m, err := s.readMeta(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading meta for %s: %w", id, err)
	}
	return m.Bookmarks, nil
}

// Latest returns the id of the most recently created snapshot, or ""
// if none exist.
func (s *Store) Latest() (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("snapshot: listing %s: %w", s.root, err)
	}
	var latest string
	var latestTime time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := s.readMeta(e.Name())
		if err != nil {
			continue
		}
		if m.CreatedAt.After(latestTime) {
			latestTime = m.CreatedAt
			latest = e.Name()
		}
	}
	return latest, nil
}

func (s *Store) readMeta(id string) (Meta, error) {
	b, err := os.ReadFile(filepath.Join(s.root, id, metaFile))
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}
