package wal

import (
	"path/filepath"

	"github.com/agentstate/agentstate/pkg/types"
)

// ReadFrom scans segments in dir (per the current manifest) that may
// contain a record with commit_seq greater than fromSeq in any
// namespace, invoking fn for each such record in order. It is used by
// pkg/watch (through an adapter in pkg/engine that knows how to decode
// a Record into a namespaced change-feed event) to replay history for
// a subscriber whose requested from_commit has already fallen behind
// the in-memory ring buffer. Because every namespace (including the
// reserved lease namespace) keeps its own independent commit_seq
// counter, fromSeq is only meaningful against the one namespace a
// caller is actually watching — ReadFrom itself is not told which
// that is, so it conservatively keeps any segment that might still
// hold a relevant record for some namespace, relying on fn's own
// per-record namespace to filter precisely. ok is false if fromSeq
// predates every segment still retained for every namespace — the
// caller must then deliver a terminal Overflow instead.
func (w *WAL) ReadFrom(fromSeq uint64, fn func(Record) error) (ok bool, err error) {
	m := w.Manifest()
	if len(m.Segments) == 0 {
		for _, bookmark := range m.Bookmarks {
			if fromSeq < bookmark {
				return false, nil
			}
		}
		return true, nil
	}
	if !anySegmentCovers(m.Segments, fromSeq) {
		return false, nil
	}

	for _, seg := range m.Segments {
		if seg.Sealed && segmentMaxSeq(seg) <= fromSeq {
			continue
		}
		path := filepath.Join(w.cfg.Dir, seg.Path)
		_, rerr := readSegment(path, func(rec Record) error {
			if rec.CommitSeq <= fromSeq {
				return nil
			}
			return fn(rec)
		})
		if rerr != nil {
			return false, rerr
		}
	}
	return true, nil
}

// segmentMaxSeq returns the highest commit_seq recorded for any
// namespace within seg — the upper bound used to decide whether the
// whole segment can be skipped for a given fromSeq.
func segmentMaxSeq(seg types.ManifestEntry) uint64 {
	var max uint64
	for _, r := range seg.Ranges {
		if r.End > max {
			max = r.End
		}
	}
	return max
}

// segmentMinSeq returns the lowest commit_seq recorded for any
// namespace within seg.
func segmentMinSeq(seg types.ManifestEntry) uint64 {
	var min uint64
	first := true
	for _, r := range seg.Ranges {
		if first || r.Start < min {
			min = r.Start
			first = false
		}
	}
	return min
}

// anySegmentCovers reports whether at least one retained segment might
// hold a record at or immediately after fromSeq for some namespace,
// meaning fromSeq hasn't fallen off the back of every namespace's
// retained history.
func anySegmentCovers(segments []types.ManifestEntry, fromSeq uint64) bool {
	for _, seg := range segments {
		if segmentMinSeq(seg) <= fromSeq+1 {
			return true
		}
	}
	return false
}
