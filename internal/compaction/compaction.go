// Package compaction implements the pairwise SST merge and the
// level-driven catalog compaction pass built on top of it.
package compaction

import (
	"bytes"
	"fmt"

	"github.com/retrokv/rkv/internal/codec"
	"github.com/retrokv/rkv/internal/logging"
	"github.com/retrokv/rkv/internal/sstable"
)

// DefaultBufferCap bounds how many records the pairwise merge holds
// in memory before flushing a chunk to the output writer.
const DefaultBufferCap = 4096

// record is one staged key/value pair, only used internally while
// staging a flush chunk.
type record struct {
	key   []byte
	value []byte
}

// MergeTwo merges two adjacent, already-sorted SSTs into one new SST
// one level higher, streaming both inputs through a bounded staging
// buffer rather than materializing either side in memory. Where both
// sides carry the same key, the newer table (new) wins — including
// when the winning value is a tombstone. Tombstones are dropped from
// the output only when isOldest is true, i.e. there is no older SST
// left downstream that a dropped tombstone could unmask.
func MergeTwo(old, new *sstable.SST, outDir string, outLevel uint16, ext string, isOldest bool, bufferCap int) (*sstable.SST, error) {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}

	oldIt, err := old.Iterator()
	if err != nil {
		return nil, err
	}
	defer oldIt.Close()

	newIt, err := new.Iterator()
	if err != nil {
		return nil, err
	}
	defer newIt.Close()

	w, err := sstable.NewWriter(outDir, outLevel, ext)
	if err != nil {
		return nil, err
	}

	stage := make([]record, 0, bufferCap)
	flush := func() error {
		for _, r := range stage {
			if err := w.Append(r.key, r.value); err != nil {
				return err
			}
		}
		stage = stage[:0]
		return nil
	}

	emit := func(key, value []byte) error {
		if isOldest && codec.IsTombstone(value) {
			return nil
		}
		stage = append(stage, record{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
		if len(stage) >= bufferCap {
			return flush()
		}
		return nil
	}

	oldHas := oldIt.Next()
	newHas := newIt.Next()

	for oldHas && newHas {
		oldRec, newRec := oldIt.Record(), newIt.Record()
		switch cmp := bytes.Compare(oldRec.Key, newRec.Key); {
		case cmp < 0:
			if err := emit(oldRec.Key, oldRec.Value); err != nil {
				w.Abort()
				return nil, err
			}
			oldHas = oldIt.Next()
		case cmp > 0:
			if err := emit(newRec.Key, newRec.Value); err != nil {
				w.Abort()
				return nil, err
			}
			newHas = newIt.Next()
		default:
			// Same key in both tables: new wins, old is discarded.
			if err := emit(newRec.Key, newRec.Value); err != nil {
				w.Abort()
				return nil, err
			}
			oldHas = oldIt.Next()
			newHas = newIt.Next()
		}
	}
	for oldHas {
		rec := oldIt.Record()
		if err := emit(rec.Key, rec.Value); err != nil {
			w.Abort()
			return nil, err
		}
		oldHas = oldIt.Next()
	}
	for newHas {
		rec := newIt.Record()
		if err := emit(rec.Key, rec.Value); err != nil {
			w.Abort()
			return nil, err
		}
		newHas = newIt.Next()
	}

	if err := oldIt.Err(); err != nil {
		w.Abort()
		return nil, err
	}
	if err := newIt.Err(); err != nil {
		w.Abort()
		return nil, err
	}
	if err := flush(); err != nil {
		w.Abort()
		return nil, err
	}

	return w.Finish()
}

// Compact runs one pass of level-driven pairwise compaction over
// catalog, which must already be sorted oldest-first (newest table
// at the tail). Adjacent tables are merged two at a time; a
// trailing odd table out passes through untouched. The merged output
// lands one level above the higher of its two inputs. Input tables
// are deleted only after their replacement is durably written.
//
// isOldest is threaded down to MergeTwo only for the very first pair
// in the catalog, since that is the only merge with no older SST
// left downstream to unmask a dropped tombstone.
func Compact(catalog []*sstable.SST, outDir, ext string, bufferCap int, log logging.Logger) ([]*sstable.SST, error) {
	if len(catalog) < 2 {
		return catalog, nil
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	result := make([]*sstable.SST, 0, len(catalog)/2+1)

	for i := 0; i < len(catalog); i += 2 {
		if i+1 >= len(catalog) {
			result = append(result, catalog[i])
			break
		}

		old, new := catalog[i], catalog[i+1]
		outLevel := old.Level
		if new.Level > outLevel {
			outLevel = new.Level
		}
		outLevel++

		merged, err := MergeTwo(old, new, outDir, outLevel, ext, i == 0, bufferCap)
		if err != nil {
			return nil, fmt.Errorf("compaction: merge %s + %s: %w", old.ID, new.ID, err)
		}

		if err := old.Delete(); err != nil {
			log.Warn("compaction: failed to remove merged input", logging.Path(old.DataPath), logging.Error(err))
		}
		if err := new.Delete(); err != nil {
			log.Warn("compaction: failed to remove merged input", logging.Path(new.DataPath), logging.Error(err))
		}

		result = append(result, merged)
	}

	return result, nil
}
