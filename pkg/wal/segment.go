package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/agentstate/agentstate/pkg/types"
)

var (
	errChecksumMismatch = errors.New("wal: checksum mismatch")
	errTornRecord       = errors.New("wal: torn record at end of segment")
)

// segmentName returns the filename for the segment with the given
// ordinal, a naming/ordering handle unrelated to any namespace's
// commit_seq.
func segmentName(ordinal uint64) string {
	return fmt.Sprintf("seg-%020d.log", ordinal)
}

// segmentOrdinal parses the ordinal encoded in a segment filename.
func segmentOrdinal(name string) (uint64, error) {
	name = filepath.Base(name)
	if !strings.HasPrefix(name, "seg-") || !strings.HasSuffix(name, ".log") {
		return 0, fmt.Errorf("wal: malformed segment name %q", name)
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "seg-"), ".log")
	ordinal, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wal: malformed segment name %q: %w", name, err)
	}
	return ordinal, nil
}

// segment wraps an open active (appendable) segment file.
type segment struct {
	path    string
	ordinal uint64
	file    *os.File
	size    int64
	ranges  map[string]types.SeqRange // namespace -> commit_seq span written so far
}

// openSegment opens (creating if necessary) the segment file for
// ordinal. If the file already holds records (resuming an unsealed
// segment after a restart), it is rescanned to rebuild the
// per-namespace ranges that only live in memory otherwise.
func openSegment(dir string, ordinal uint64) (*segment, error) {
	path := filepath.Join(dir, segmentName(ordinal))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: opening segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: statting segment %s: %w", path, err)
	}
	s := &segment{path: path, ordinal: ordinal, file: f, size: info.Size(), ranges: make(map[string]types.SeqRange)}
	if info.Size() > 0 {
		if _, err := readSegment(path, func(rec Record) error {
			s.recordSeq(rec.Namespace, rec.CommitSeq)
			return nil
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("wal: rebuilding ranges for segment %s: %w", path, err)
		}
	}
	return s, nil
}

// recordSeq extends this segment's tracked range for namespace to
// include seq.
func (s *segment) recordSeq(namespace string, seq uint64) {
	r, ok := s.ranges[namespace]
	if !ok {
		r.Start = seq
	}
	r.End = seq
	s.ranges[namespace] = r
}

// append writes frame to the segment's in-kernel file buffer and
// extends rec's namespace range. It does not sync; callers sync
// explicitly via the configured sync mode.
func (s *segment) append(rec Record, frame []byte) error {
	n, err := s.file.Write(frame)
	if err != nil {
		return fmt.Errorf("wal: writing to segment %s: %w", s.path, err)
	}
	s.size += int64(n)
	s.recordSeq(rec.Namespace, rec.CommitSeq)
	return nil
}

// sync flushes the segment file to stable storage per mode: "data"
// uses Fdatasync (skips inode metadata when size is unchanged since
// open, which never occurs here since size always grows on append,
// but avoids the extra metadata write on most filesystems); "metadata"
// uses a full File.Sync().
func (s *segment) sync(mode string) error {
	if mode == "metadata" {
		return s.file.Sync()
	}
	return unix.Fdatasync(int(s.file.Fd()))
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns segment filenames in dir sorted by ordinal
// ascending.
func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("wal: listing segments in %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "seg-") && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		oi, _ := segmentOrdinal(names[i])
		oj, _ := segmentOrdinal(names[j])
		return oi < oj
	})
	return names, nil
}

// readSegment scans a sealed or active segment file from the
// beginning, invoking fn for each well-formed record. It returns the
// byte offset of the torn tail, if any, so the caller can truncate: an
// incomplete final record, or a final record that fails its checksum.
// A checksum failure with more bytes after it is reported as a fatal
// error rather than silently truncated.
func readSegment(path string, fn func(Record) error) (tornAt int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("wal: opening segment %s for read: %w", path, err)
	}
	defer f.Close()

	var offset int64
	header := make([]byte, frameHeaderSize)
	for {
		n, rerr := io.ReadFull(f, header)
		if rerr == io.EOF {
			return offset, nil
		}
		if rerr == io.ErrUnexpectedEOF || n < frameHeaderSize {
			return offset, nil // torn header at tail
		}
		if rerr != nil {
			return offset, fmt.Errorf("wal: reading header in %s at %d: %w", path, offset, rerr)
		}

		length := binary.BigEndian.Uint32(header[0:4])
		checksum := binary.BigEndian.Uint32(header[4:8])

		buf := make([]byte, length)
		n, rerr = io.ReadFull(f, buf)
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF || uint32(n) < length {
			return offset, nil // torn record at tail
		}
		if rerr != nil {
			return offset, fmt.Errorf("wal: reading body in %s at %d: %w", path, offset, rerr)
		}

		rec, derr := decodeBody(checksum, buf)
		if derr != nil {
			// A bad frame that ends exactly at end of file is a torn
			// write at the tail.
			if info, serr := f.Stat(); serr == nil && offset+frameHeaderSize+int64(length) == info.Size() {
				return offset, nil
			}
			if offset == 0 {
				return offset, fmt.Errorf("%w: segment %s is empty or unreadable from the start", errTornRecord, path)
			}
			// A checksum failure mid-segment (more frames follow it) is
			// unrecoverable corruption.
			return offset, fmt.Errorf("wal: %w: segment %s at offset %d", errChecksumMismatch, path, offset)
		}
		if err := fn(rec); err != nil {
			return offset, err
		}
		offset += frameHeaderSize + int64(length)
	}
}
