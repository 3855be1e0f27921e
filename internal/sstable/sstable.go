// Package sstable implements the on-disk sorted-string-table format:
// a data file of length-prefixed key/value records in ascending key
// order, paired with a sibling index file of dense u64 offsets that
// makes point lookups a binary search instead of a linear scan.
package sstable

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/retrokv/rkv/internal/codec"
)

// SST is a handle to an immutable, already-written sorted-string
// table. It never keeps a long-lived file descriptor open; every
// operation opens what it needs and closes it before returning.
type SST struct {
	DataPath  string
	IndexPath string
	Level     uint16
	ID        string
	Count     int64
}

// fileName renders the `<level>-<uuid>.<ext>` naming convention.
func fileName(level uint16, id, ext string) string {
	return fmt.Sprintf("%d-%s.%s", level, id, ext)
}

func indexName(dataFileName string) string {
	return dataFileName + ".index"
}

// Open builds an SST handle from an already-written data file,
// deriving the sibling index path and validating that the index file
// size is a multiple of 8 (one entry per record). It parses level and
// id back out of the filename; a name that doesn't match the
// convention is reported as an error, which Discover passes on.
func Open(dataPath string) (*SST, error) {
	idxPath := dataPath + ".index"

	info, err := os.Stat(idxPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: stat index %s: %w", idxPath, err)
	}
	if info.Size()%codec.IndexEntrySize != 0 {
		return nil, fmt.Errorf("sstable: index file %s has size %d, not a multiple of %d",
			idxPath, info.Size(), codec.IndexEntrySize)
	}

	level, id, err := parseName(filepath.Base(dataPath))
	if err != nil {
		return nil, err
	}

	return &SST{
		DataPath:  dataPath,
		IndexPath: idxPath,
		Level:     level,
		ID:        id,
		Count:     info.Size() / codec.IndexEntrySize,
	}, nil
}

// parseName recovers level and id from a "<level>-<uuid>.<ext>" name.
// The leading level is purely informational but we still parse it
// back out for the Level field and log messages.
func parseName(base string) (uint16, string, error) {
	name := base
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[:i]
	}
	dash := strings.Index(name, "-")
	if dash < 0 {
		return 0, "", fmt.Errorf("sstable: malformed filename %q", base)
	}
	level, err := strconv.ParseUint(name[:dash], 10, 16)
	if err != nil {
		return 0, "", fmt.Errorf("sstable: malformed level in filename %q: %w", base, err)
	}
	return uint16(level), name[dash+1:], nil
}

// Search performs the binary-search lookup over this table's index
// and data files. It returns (value, true, nil) for a live hit,
// (nil, false, nil) for both a miss and a tombstone hit, and a
// non-nil error only for I/O or corruption failures. A single-SST
// query can't tell a deletion from an absence this way.
//
// Store's own catalog walk needs that distinction to get newer-wins
// masking right across more than one table, so it calls SearchRaw
// instead; Search stays a faithful, self-contained lookup primitive.
func (s *SST) Search(key []byte) ([]byte, bool, error) {
	value, found, tombstone, err := s.SearchRaw(key)
	if err != nil || tombstone {
		return nil, false, err
	}
	return value, found, nil
}

// SearchRaw is the same binary search as Search but reports a
// tombstone hit explicitly instead of folding it into "not found".
func (s *SST) SearchRaw(key []byte) (value []byte, found bool, tombstone bool, err error) {
	idxFile, err := os.Open(s.IndexPath)
	if err != nil {
		return nil, false, false, fmt.Errorf("sstable: open index %s: %w", s.IndexPath, err)
	}
	defer idxFile.Close()

	dataFile, err := os.Open(s.DataPath)
	if err != nil {
		return nil, false, false, fmt.Errorf("sstable: open data %s: %w", s.DataPath, err)
	}
	defer dataFile.Close()

	start, end := int64(0), s.Count
	for start < end {
		mid := start + (end-start)/2

		offset, err := codec.ReadIndexEntryAt(idxFile, mid)
		if err != nil {
			return nil, false, false, err
		}
		if _, err := dataFile.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, false, false, fmt.Errorf("sstable: seek data file: %w", err)
		}
		rec, err := codec.ReadRecord(dataFile)
		if err != nil {
			return nil, false, false, fmt.Errorf("sstable: read record at index %d: %w", mid, err)
		}

		switch cmp := bytes.Compare(key, rec.Key); {
		case cmp < 0:
			end = mid
		case cmp > 0:
			start = mid + 1
		default:
			if codec.IsTombstone(rec.Value) {
				return nil, true, true, nil
			}
			return rec.Value, true, false, nil
		}
	}
	return nil, false, false, nil
}

// Iterator streams every record in the data file front-to-back in the
// strictly ascending key order the Writer enforced, so callers never
// need to re-sort. Used by compaction.
type Iterator struct {
	file *os.File
	br   *bufio.Reader
	rec  codec.Record
	err  error
}

// Iterator opens a fresh sequential reader over the data file.
func (s *SST) Iterator() (*Iterator, error) {
	f, err := os.Open(s.DataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: open data %s: %w", s.DataPath, err)
	}
	return &Iterator{file: f, br: codec.NewBufferedReader(f)}, nil
}

// Next advances to the next record, returning false at EOF or error.
func (it *Iterator) Next() bool {
	rec, err := codec.ReadRecord(it.br)
	if err != nil {
		if err != io.EOF {
			it.err = err
		}
		return false
	}
	it.rec = rec
	return true
}

// Record returns the record most recently made current by Next.
func (it *Iterator) Record() codec.Record { return it.rec }

// Err reports any non-EOF error encountered during iteration.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator's file handle.
func (it *Iterator) Close() error { return it.file.Close() }

// AsMap streams the data file front to back via a memory-mapped
// reader and decodes every record, omitting tombstones. It is a
// fallback full-scan path; the streaming pairwise merge in package
// compaction is preferred for merging two tables.
func (s *SST) AsMap() (map[string][]byte, error) {
	mapped, err := mmap.Open(s.DataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: mmap open %s: %w", s.DataPath, err)
	}
	defer mapped.Close()

	r := io.NewSectionReader(mapped, 0, int64(mapped.Len()))
	br := codec.NewBufferedReader(r)

	out := make(map[string][]byte)
	for {
		rec, err := codec.ReadRecord(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("sstable: decode %s: %w", s.DataPath, err)
		}
		if codec.IsTombstone(rec.Value) {
			delete(out, string(rec.Key))
			continue
		}
		out[string(rec.Key)] = rec.Value
	}
	return out, nil
}

// Delete removes both sibling files. Per-file failures are collected
// and returned together but never prevent the other file from being
// removed, leaving the logging decision to the caller.
func (s *SST) Delete() error {
	var errs []error
	if err := os.Remove(s.DataPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove data file %s: %w", s.DataPath, err))
	}
	if err := os.Remove(s.IndexPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove index file %s: %w", s.IndexPath, err))
	}
	return errors.Join(errs...)
}

// Discover scans dir for `*.<ext>` data files and opens each as an
// SST, sorted by filename so the catalog comes back in a stable,
// reproducible order. A missing directory yields an empty, non-error
// catalog.
func Discover(dir, ext string) ([]*SST, error) {
	pattern := filepath.Join(dir, "*."+ext)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("sstable: glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	ssts := make([]*SST, 0, len(matches))
	for _, path := range matches {
		if strings.HasSuffix(path, ".index") {
			continue
		}
		sst, err := Open(path)
		if err != nil {
			return nil, err
		}
		ssts = append(ssts, sst)
	}
	return ssts, nil
}
