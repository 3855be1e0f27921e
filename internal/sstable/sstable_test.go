package sstable

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrokv/rkv/internal/codec"
)

func writeSST(t *testing.T, dir string, level uint16, pairs [][2]string) *SST {
	t.Helper()
	w, err := NewWriter(dir, level, "rkv")
	require.NoError(t, err)
	for _, p := range pairs {
		require.NoError(t, w.Append([]byte(p[0]), []byte(p[1])))
	}
	sst, err := w.Finish()
	require.NoError(t, err)
	return sst
}

func TestWriterRejectsOutOfOrderKeys(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 1, "rkv")
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("b"), []byte("1")))
	err = w.Append([]byte("a"), []byte("2"))
	require.Error(t, err)
	require.NoError(t, w.Abort())
}

func TestSearchFindsEveryKey(t *testing.T) {
	dir := t.TempDir()
	pairs := [][2]string{{"key1", "v1"}, {"key2", "v2"}, {"key3", "v3"}, {"key4", "v4"}}
	sst := writeSST(t, dir, 1, pairs)

	require.Equal(t, int64(len(pairs)), sst.Count)
	for _, p := range pairs {
		value, found, err := sst.Search([]byte(p[0]))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, p[1], string(value))
	}
}

func TestSearchMissingKey(t *testing.T) {
	dir := t.TempDir()
	sst := writeSST(t, dir, 1, [][2]string{{"key1", "v1"}, {"key3", "v3"}})

	_, found, err := sst.Search([]byte("key2"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSearchTombstoneCollapsesToMiss(t *testing.T) {
	dir := t.TempDir()
	sst := writeSST(t, dir, 1, [][2]string{{"key1", string(codec.Tombstone)}})

	_, found, err := sst.Search([]byte("key1"))
	require.NoError(t, err)
	require.False(t, found)

	_, found, tombstone, err := sst.SearchRaw([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, tombstone)
}

func TestOpenParsesLevelAndID(t *testing.T) {
	dir := t.TempDir()
	written := writeSST(t, dir, 3, [][2]string{{"a", "1"}})

	opened, err := Open(written.DataPath)
	require.NoError(t, err)
	require.Equal(t, uint16(3), opened.Level)
	require.Equal(t, written.ID, opened.ID)
	require.Equal(t, written.Count, opened.Count)
}

func TestAsMapOmitsTombstones(t *testing.T) {
	dir := t.TempDir()
	sst := writeSST(t, dir, 1, [][2]string{
		{"key1", "v1"},
		{"key2", string(codec.Tombstone)},
		{"key3", "v3"},
	})

	m, err := sst.AsMap()
	require.NoError(t, err)
	require.Equal(t, map[string][]byte{"key1": []byte("v1"), "key3": []byte("v3")}, m)
}

func TestIteratorYieldsAscendingOrder(t *testing.T) {
	dir := t.TempDir()
	pairs := [][2]string{{"key1", "v1"}, {"key10", "v10"}, {"key2", "v2"}}
	sst := writeSST(t, dir, 1, pairs)

	it, err := sst.Iterator()
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Record().Key))
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"key1", "key10", "key2"}, got)
}

func TestDeleteRemovesBothFiles(t *testing.T) {
	dir := t.TempDir()
	sst := writeSST(t, dir, 1, [][2]string{{"a", "1"}})

	require.NoError(t, sst.Delete())
	require.NoFileExists(t, sst.DataPath)
	require.NoFileExists(t, sst.IndexPath)

	// A second delete of already-missing files is not an error.
	require.NoError(t, sst.Delete())
}

func TestDiscoverSortsByFilename(t *testing.T) {
	dir := t.TempDir()
	writeSST(t, dir, 1, [][2]string{{"a", "1"}})
	writeSST(t, dir, 2, [][2]string{{"b", "1"}})

	found, err := Discover(dir, "rkv")
	require.NoError(t, err)
	require.Len(t, found, 2)
	// "1-<uuid>.rkv" sorts before "2-<uuid>.rkv".
	require.Equal(t, uint16(1), found[0].Level)
	require.Equal(t, uint16(2), found[1].Level)
}

func TestDiscoverEmptyDirectory(t *testing.T) {
	found, err := Discover(filepath.Join(t.TempDir(), "missing"), "rkv")
	require.NoError(t, err)
	require.Empty(t, found)
}
