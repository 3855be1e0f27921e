package sstable

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/retrokv/rkv/internal/codec"
)

// Writer streams sorted, unique records into a new data file and its
// sibling index file. Callers must present keys in strictly
// increasing order; Append rejects anything else so a bug upstream
// (memtable iteration order, a bad merge cursor) is caught at the
// source instead of silently producing an unsearchable SST.
type Writer struct {
	level uint16
	id    string
	ext   string

	dataPath  string
	indexPath string
	dataFile  *os.File
	indexFile *os.File
	dataW     *bufio.Writer
	indexW    *bufio.Writer

	offset  uint64
	count   int64
	lastKey []byte
	done    bool
}

// NewWriter creates dir if needed and opens a new pair of sibling
// files named after a fresh id and the given level.
func NewWriter(dir string, level uint16, ext string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sstable: mkdir %s: %w", dir, err)
	}

	id := uuid.NewString()
	name := fileName(level, id, ext)
	dataPath := filepath.Join(dir, name)
	idxPath := filepath.Join(dir, indexName(name))

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", dataPath, err)
	}
	idxFile, err := os.Create(idxPath)
	if err != nil {
		dataFile.Close()
		os.Remove(dataPath)
		return nil, fmt.Errorf("sstable: create %s: %w", idxPath, err)
	}

	return &Writer{
		level:     level,
		id:        id,
		ext:       ext,
		dataPath:  dataPath,
		indexPath: idxPath,
		dataFile:  dataFile,
		indexFile: idxFile,
		dataW:     bufio.NewWriterSize(dataFile, 64*1024),
		indexW:    bufio.NewWriterSize(idxFile, 64*1024),
	}, nil
}

// Append writes one record. key must sort strictly after the
// previously appended key.
func (w *Writer) Append(key, value []byte) error {
	if w.done {
		return fmt.Errorf("sstable: append after Finish/Abort")
	}
	if w.lastKey != nil && bytes.Compare(key, w.lastKey) <= 0 {
		return fmt.Errorf("sstable: out-of-order append: %q does not sort after %q", key, w.lastKey)
	}

	if err := codec.WriteIndexEntry(w.indexW, w.offset); err != nil {
		return fmt.Errorf("sstable: write index entry: %w", err)
	}
	n, err := codec.WriteRecord(w.dataW, key, value)
	if err != nil {
		return fmt.Errorf("sstable: write record: %w", err)
	}

	w.offset += uint64(n)
	w.count++
	w.lastKey = append(w.lastKey[:0], key...)
	return nil
}

// Count returns the number of records appended so far.
func (w *Writer) Count() int64 { return w.count }

// BytesWritten returns the total size of the data-file records
// appended so far (excluding the index file).
func (w *Writer) BytesWritten() uint64 { return w.offset }

// Finish flushes and syncs both files and returns a handle to the
// resulting SST. On any error the partially written files are
// removed on a best-effort basis.
func (w *Writer) Finish() (*SST, error) {
	if err := w.flush(); err != nil {
		w.Abort()
		return nil, err
	}
	w.done = true

	return &SST{
		DataPath:  w.dataPath,
		IndexPath: w.indexPath,
		Level:     w.level,
		ID:        w.id,
		Count:     w.count,
	}, nil
}

func (w *Writer) flush() error {
	if err := w.dataW.Flush(); err != nil {
		return fmt.Errorf("sstable: flush data file: %w", err)
	}
	if err := w.indexW.Flush(); err != nil {
		return fmt.Errorf("sstable: flush index file: %w", err)
	}
	if err := w.dataFile.Sync(); err != nil {
		return fmt.Errorf("sstable: sync data file: %w", err)
	}
	if err := w.indexFile.Sync(); err != nil {
		return fmt.Errorf("sstable: sync index file: %w", err)
	}
	if err := w.dataFile.Close(); err != nil {
		return fmt.Errorf("sstable: close data file: %w", err)
	}
	if err := w.indexFile.Close(); err != nil {
		return fmt.Errorf("sstable: close index file: %w", err)
	}
	return nil
}

// Abort discards an in-progress write, closing and removing both
// files regardless of how far the write had gotten.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	w.dataFile.Close()
	w.indexFile.Close()

	var errs []error
	if err := os.Remove(w.dataPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := os.Remove(w.indexPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("sstable: abort cleanup: %v", errs)
	}
	return nil
}
