package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/agentstate/agentstate/pkg/log"
	"github.com/agentstate/agentstate/pkg/types"
)

// Config controls segmentation and durability behavior.
type Config struct {
	Dir           string
	SegmentBytes  int64
	FlushInterval time.Duration
	SyncMode      string // "data" or "metadata"
}

// waiter is a pending append awaiting sync acknowledgement.
type waiter struct {
	done chan error
}

// WAL is a durable, segmented, checksummed append-only record log.
// Writers call Append, which stages the record and blocks until the
// background flusher has synced its segment; Append returns the
// assigned durability guarantee, not a synchronous disk write itself.
type WAL struct {
	cfg Config

	mu       sync.Mutex
	active   *segment
	pending  []waiter
	manifest types.Manifest

	degraded atomic.Bool

	signalCh chan struct{}
	stopCh   chan struct{}
	stopped  chan struct{}

	lock *flock.Flock
}

// Open opens (creating if necessary) the WAL rooted at cfg.Dir,
// acquiring an advisory lock on <dir>/LOCK to prevent a second process
// from corrupting the log via concurrent writes, then readying the
// active segment for append (the last unsealed segment if there is
// one, otherwise a new one recorded in the manifest).
func Open(cfg Config) (*WAL, error) {
	if cfg.SyncMode == "" {
		cfg.SyncMode = "data"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Millisecond
	}
	if cfg.SegmentBytes <= 0 {
		cfg.SegmentBytes = 64 << 20
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: creating data dir %s: %w", cfg.Dir, err)
	}

	lock := flock.New(filepath.Join(cfg.Dir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("wal: acquiring data dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("wal: data dir %s is held by another process", cfg.Dir)
	}

	manifest, err := loadManifest(cfg.Dir)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	ordinal := uint64(0)
	if n := len(manifest.Segments); n > 0 {
		last := manifest.Segments[n-1]
		if !last.Sealed {
			ordinal = last.Ordinal
		} else {
			ordinal = last.Ordinal + 1
		}
	}

	active, err := openSegment(cfg.Dir, ordinal)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if len(manifest.Segments) == 0 || manifest.Segments[len(manifest.Segments)-1].Sealed {
		manifest.Segments = append(manifest.Segments, types.ManifestEntry{
			Path: segmentName(ordinal), Ordinal: ordinal,
		})
		if err := saveManifest(cfg.Dir, manifest); err != nil {
			active.close()
			lock.Unlock()
			return nil, err
		}
	}

	w := &WAL{
		cfg:      cfg,
		active:   active,
		manifest: manifest,
		signalCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
		lock:     lock,
	}
	go w.flushLoop()
	return w, nil
}

// Append stages a record for durable write, assigns it a position in
// the active segment, and blocks until the background flusher has
// synced that position. Append itself is not cancellable; callers that
// need to honor context cancellation do so around the call (see
// pkg/engine's coordinator), since a commit that has already reached
// the segment cannot be safely un-staged.
func (w *WAL) Append(rec Record) error {
	if w.degraded.Load() {
		return types.New("wal.Append", types.KindPersistentStorage, fmt.Errorf("wal is degraded"))
	}

	frame, err := Encode(rec)
	if err != nil {
		return types.New("wal.Append", types.KindInvalidArgument, err)
	}

	w.mu.Lock()
	if err := w.active.append(rec, frame); err != nil {
		w.mu.Unlock()
		w.markDegraded(err)
		return types.New("wal.Append", types.KindPersistentStorage, err)
	}
	if w.active.size >= w.cfg.SegmentBytes {
		if err := w.rotateLocked(); err != nil {
			w.mu.Unlock()
			w.markDegraded(err)
			return types.New("wal.Append", types.KindPersistentStorage, err)
		}
	}
	wt := waiter{done: make(chan error, 1)}
	w.pending = append(w.pending, wt)
	w.mu.Unlock()

	w.Signal()

	if err := <-wt.done; err != nil {
		return types.New("wal.Append", types.KindPersistentStorage, err)
	}
	return nil
}

// Signal wakes the flusher immediately instead of waiting for the
// next tick, used by the commit coordinator to cut sync latency.
func (w *WAL) Signal() {
	select {
	case w.signalCh <- struct{}{}:
	default:
	}
}

func (w *WAL) flushLoop() {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	defer close(w.stopped)
	for {
		select {
		case <-ticker.C:
			w.flushOnce()
		case <-w.signalCh:
			w.flushOnce()
		case <-w.stopCh:
			w.flushOnce()
			return
		}
	}
}

func (w *WAL) flushOnce() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	seg := w.active
	waiters := w.pending
	w.pending = nil
	w.mu.Unlock()

	err := seg.sync(w.cfg.SyncMode)
	if err != nil {
		w.markDegraded(err)
	}
	for _, wt := range waiters {
		wt.done <- err
	}
}

func (w *WAL) markDegraded(cause error) {
	if w.degraded.CompareAndSwap(false, true) {
		log.Logger.Error().Err(cause).Msg("wal: sync failed, entering degraded mode")
	}
}

// Degraded reports whether a prior sync failure has put the WAL into
// fail-stop mode, in which it rejects further appends.
func (w *WAL) Degraded() bool {
	return w.degraded.Load()
}

// rotateLocked seals the active segment in the manifest, recording the
// per-namespace commit_seq ranges actually written to it, and opens a
// new one. Callers must hold w.mu.
func (w *WAL) rotateLocked() error {
	if n := len(w.manifest.Segments); n > 0 {
		w.manifest.Segments[n-1].SizeBytes = w.active.size
		w.manifest.Segments[n-1].Sealed = true
		w.manifest.Segments[n-1].Ranges = copyRanges(w.active.ranges)
	}
	if err := w.active.sync(w.cfg.SyncMode); err != nil {
		return err
	}
	if err := w.active.close(); err != nil {
		return err
	}

	next := w.active.ordinal + 1
	seg, err := openSegment(w.cfg.Dir, next)
	if err != nil {
		return err
	}
	w.active = seg
	w.manifest.Segments = append(w.manifest.Segments, types.ManifestEntry{
		Path: segmentName(next), Ordinal: next,
	})
	return saveManifest(w.cfg.Dir, w.manifest)
}

// copyRanges returns an independent copy of a segment's per-namespace
// ranges, so the sealed manifest entry doesn't alias the in-memory map
// a later-opened segment might mutate.
func copyRanges(ranges map[string]types.SeqRange) map[string]types.SeqRange {
	out := make(map[string]types.SeqRange, len(ranges))
	for ns, r := range ranges {
		out[ns] = r
	}
	return out
}

// Manifest returns a snapshot copy of the current manifest.
func (w *WAL) Manifest() types.Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.manifest
	m.Segments = append([]types.ManifestEntry(nil), w.manifest.Segments...)
	return m
}

// Trim removes every sealed segment whose recorded commit_seq range is
// fully covered by bookmarks (every namespace it contains has reached
// at most its bookmarked seq), records bookmarks as the manifest's
// latest per-namespace snapshot bookmarks, and atomically replaces the
// manifest file. A namespace present in a segment but absent from
// bookmarks is treated as uncovered, so the segment is kept.
func (w *WAL) Trim(bookmarks map[string]uint64, snapshotID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.manifest.Segments[:0:0]
	for _, seg := range w.manifest.Segments {
		if seg.Sealed && segmentCovered(seg, bookmarks) {
			if err := os.Remove(filepath.Join(w.cfg.Dir, seg.Path)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("wal: removing trimmed segment %s: %w", seg.Path, err)
			}
			continue
		}
		kept = append(kept, seg)
	}
	w.manifest.Segments = kept
	if w.manifest.Bookmarks == nil {
		w.manifest.Bookmarks = make(map[string]uint64, len(bookmarks))
	}
	for ns, seq := range bookmarks {
		w.manifest.Bookmarks[ns] = seq
	}
	w.manifest.SnapshotID = snapshotID
	return saveManifest(w.cfg.Dir, w.manifest)
}

// segmentCovered reports whether every namespace represented in seg
// has been fully captured by bookmarks, making the segment safe to
// remove without losing committed data.
func segmentCovered(seg types.ManifestEntry, bookmarks map[string]uint64) bool {
	for ns, r := range seg.Ranges {
		if r.End > bookmarks[ns] {
			return false
		}
	}
	return true
}

// Close stops the flusher, syncs any pending writes, and releases the
// data-dir lock.
func (w *WAL) Close() error {
	close(w.stopCh)
	<-w.stopped
	w.mu.Lock()
	err := w.active.close()
	w.mu.Unlock()
	w.lock.Unlock()
	return err
}
