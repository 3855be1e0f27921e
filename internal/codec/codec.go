// Package codec implements the binary record format shared by every
// SST data file and its sibling index file: a length-prefixed
// key/value record on the data side, and a flat array of u64 offsets
// on the index side.
package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Tombstone is the sentinel value recorded in place of a deleted
// key's value. It is chosen to be vanishingly unlikely to collide
// with a real value and is documented here as the one fixed constant
// callers must avoid writing verbatim.
var Tombstone = []byte("~tombstone~")

// IsTombstone reports whether value is the tombstone sentinel.
func IsTombstone(value []byte) bool {
	if len(value) != len(Tombstone) {
		return false
	}
	for i := range value {
		if value[i] != Tombstone[i] {
			return false
		}
	}
	return true
}

// MaxKeyLen is the largest key the u16 length prefix can encode.
const MaxKeyLen = 1<<16 - 1

// MaxValueLen is the largest value the u32 length prefix can encode.
const MaxValueLen = 1<<32 - 1

// IndexEntrySize is the encoded width of one index-file entry.
const IndexEntrySize = 8

// Record is a single decoded data-file entry.
type Record struct {
	Key   []byte
	Value []byte
}

// WriteRecord appends one key_len|key|val_len|value record to w and
// returns the number of bytes written.
func WriteRecord(w io.Writer, key, value []byte) (int, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("codec: empty key")
	}
	if len(key) > MaxKeyLen {
		return 0, fmt.Errorf("codec: key length %d exceeds %d", len(key), MaxKeyLen)
	}
	if uint64(len(value)) > MaxValueLen {
		return 0, fmt.Errorf("codec: value length %d exceeds %d", len(value), MaxValueLen)
	}

	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(key)))
	n := 0

	written, err := w.Write(hdr[0:2])
	if err != nil {
		return n, err
	}
	n += written

	written, err = w.Write(key)
	if err != nil {
		return n, err
	}
	n += written

	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(value)))
	written, err = w.Write(hdr[2:6])
	if err != nil {
		return n, err
	}
	n += written

	written, err = w.Write(value)
	if err != nil {
		return n, err
	}
	n += written

	return n, nil
}

// ReadRecord decodes one record from r. io.EOF is returned unchanged
// when the reader is exhausted exactly at a record boundary; any
// other truncation surfaces as a wrapped corruption error.
func ReadRecord(r io.Reader) (Record, error) {
	var keyLenBuf [2]byte
	if _, err := io.ReadFull(r, keyLenBuf[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("codec: read key length: %w", err)
	}
	keyLen := binary.LittleEndian.Uint16(keyLenBuf[:])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Record{}, fmt.Errorf("codec: truncated key (corrupt record): %w", err)
	}

	var valLenBuf [4]byte
	if _, err := io.ReadFull(r, valLenBuf[:]); err != nil {
		return Record{}, fmt.Errorf("codec: truncated value length (corrupt record): %w", err)
	}
	valLen := binary.LittleEndian.Uint32(valLenBuf[:])

	value := make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return Record{}, fmt.Errorf("codec: truncated value (corrupt record): %w", err)
	}

	return Record{Key: key, Value: value}, nil
}

// WriteIndexEntry appends one absolute data-file offset to w.
func WriteIndexEntry(w io.Writer, offset uint64) error {
	var buf [IndexEntrySize]byte
	binary.LittleEndian.PutUint64(buf[:], offset)
	_, err := w.Write(buf[:])
	return err
}

// ReadIndexEntryAt reads the offset stored at index position i with a
// single ReadAt at byte i*IndexEntrySize. Because r is an io.ReaderAt,
// no seek happens and no other cursor on the same file is disturbed.
func ReadIndexEntryAt(r io.ReaderAt, i int64) (uint64, error) {
	var buf [IndexEntrySize]byte
	if _, err := r.ReadAt(buf[:], i*IndexEntrySize); err != nil {
		return 0, fmt.Errorf("codec: read index entry %d: %w", i, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// NewBufferedReader wraps r for sequential record scanning.
func NewBufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 64*1024)
}
