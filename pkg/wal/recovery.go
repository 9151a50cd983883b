package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentstate/agentstate/pkg/types"
)

// Recover reads the manifest in dir and replays every record whose
// commit_seq exceeds its namespace's snapshot bookmark, invoking apply
// for each in (segment, offset) order. It truncates a torn trailing
// record in the last segment and reports a fatal *types.Error with
// KindCorruption if a checksum failure is found before the torn tail.
//
// Recover does not itself load a snapshot; callers load the snapshot
// named in the returned manifest (if any) before calling Recover, then
// pass the same apply callback to fold WAL records on top of it.
func Recover(dir string, apply func(Record) error) (types.Manifest, error) {
	manifest, err := loadManifest(dir)
	if err != nil {
		return types.Manifest{}, err
	}

	for i, seg := range manifest.Segments {
		path := filepath.Join(dir, seg.Path)
		isLast := i == len(manifest.Segments)-1

		tornAt, rerr := readSegment(path, func(rec Record) error {
			if rec.CommitSeq <= manifest.Bookmarks[rec.Namespace] {
				return nil // already covered by the loaded snapshot
			}
			return apply(rec)
		})
		if rerr != nil {
			return types.Manifest{}, types.New("wal.Recover", types.KindCorruption, rerr)
		}

		if isLast && !seg.Sealed {
			if err := truncateTornTail(path, tornAt); err != nil {
				return types.Manifest{}, types.New("wal.Recover", types.KindPersistentStorage, err)
			}
		}
	}
	return manifest, nil
}

// truncateTornTail truncates the segment at path to validOffset bytes,
// discarding an incomplete record left by a crash mid-write.
func truncateTornTail(path string, validOffset int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("wal: statting %s during recovery: %w", path, err)
	}
	if info.Size() == validOffset {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("wal: opening %s to truncate torn tail: %w", path, err)
	}
	defer f.Close()
	if err := f.Truncate(validOffset); err != nil {
		return fmt.Errorf("wal: truncating %s to %d: %w", path, validOffset, err)
	}
	return nil
}
