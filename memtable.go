package rkv

import "sort"

// memtable is the in-memory write buffer a Store accumulates Set and
// Delete calls into before they are flushed to a new SST. It is not
// safe for concurrent use on its own; the Store guards it with its
// own memtable lock.
type memtable struct {
	data   map[string][]byte
	keys   []string
	sorted bool
}

func newMemtable() *memtable {
	return &memtable{
		data:   make(map[string][]byte),
		sorted: true,
	}
}

// put records value (or the tombstone sentinel for a deletion) under
// key, overwriting whatever was there before.
func (mt *memtable) put(key, value []byte) {
	keyStr := string(key)
	if _, exists := mt.data[keyStr]; !exists {
		mt.keys = append(mt.keys, keyStr)
		mt.sorted = false
	}
	mt.data[keyStr] = value
}

// get returns the live value for key and whether it was present.
// A tombstone is returned as-is; callers that need to stop a catalog
// search on a tombstone hit check it themselves.
func (mt *memtable) get(key []byte) ([]byte, bool) {
	value, ok := mt.data[string(key)]
	return value, ok
}

func (mt *memtable) len() int {
	return len(mt.keys)
}

// sortedKeys returns the memtable's keys in ascending order,
// re-sorting lazily the first time it's needed since the last put.
func (mt *memtable) sortedKeys() []string {
	if !mt.sorted {
		sort.Strings(mt.keys)
		mt.sorted = true
	}
	return mt.keys
}

// reset drops every entry, used once a flush has durably written the
// memtable's contents to a new SST.
func (mt *memtable) reset() {
	mt.data = make(map[string][]byte)
	mt.keys = mt.keys[:0]
	mt.sorted = true
}
