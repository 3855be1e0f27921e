package rkv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrokv/rkv/internal/logging"
)

func newTestStore(t *testing.T, budget int64) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Dir = t.TempDir()
	cfg.MemtableByteBudget = budget
	s, err := Open(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	return s
}

// Scenario 1: basic round-trip.
func TestScenarioBasicRoundTrip(t *testing.T) {
	s := newTestStore(t, 100)
	require.NoError(t, s.Set([]byte("life"), []byte("42")))

	value, err := s.Get([]byte("life"))
	require.NoError(t, err)
	require.Equal(t, "42", string(value))
}

// Scenario 2: overflow triggers a flush.
func TestScenarioOverflowTriggersFlush(t *testing.T) {
	s := newTestStore(t, 20)
	for i := 1; i <= 7; i++ {
		key := []byte("key" + string(rune('0'+i)))
		value := []byte("value" + string(rune('0'+i)))
		require.NoError(t, s.Set(key, value))
	}

	value, err := s.Get([]byte("key1"))
	require.NoError(t, err)
	require.Equal(t, "value1", string(value))
	require.GreaterOrEqual(t, s.SSTablesCount(), 1)
}

// Scenario 3: delete semantics.
func TestScenarioDeleteSemantics(t *testing.T) {
	s := newTestStore(t, 20)
	for i := 1; i <= 7; i++ {
		key := []byte("key" + string(rune('0'+i)))
		value := []byte("value" + string(rune('0'+i)))
		require.NoError(t, s.Set(key, value))
	}
	require.NoError(t, s.Delete([]byte("key2")))

	_, err := s.Get([]byte("key2"))
	require.ErrorIs(t, err, ErrNotFound)

	value, err := s.Get([]byte("key3"))
	require.NoError(t, err)
	require.Equal(t, "value3", string(value))
}

// Scenario 4: overwrite across flushes survives compaction. Keys and
// values are kept at a uniform 1-byte/1-byte size so a budget equal
// to one pair forces exactly one flush per subsequent Set, making the
// resulting catalog shape deterministic.
func TestScenarioOverwriteAcrossFlushes(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Set([]byte("k"), []byte("1")))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set([]byte{byte('a' + i)}, []byte("x")))
	}

	require.NoError(t, s.Set([]byte("k"), []byte("7")))
	// Force the final overwrite out of the memtable and into the
	// catalog so compaction has to reconcile the two "k" entries.
	require.NoError(t, s.Set([]byte("z"), []byte("y")))
	require.NoError(t, s.Compaction())

	value, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "7", string(value))
}

// Scenario 5: compaction collapses the catalog.
func TestScenarioCompactionCollapsesCatalog(t *testing.T) {
	s := newTestStore(t, 2)
	require.NoError(t, s.Set([]byte("k"), []byte("1")))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set([]byte{byte('a' + i)}, []byte("x")))
	}
	require.NoError(t, s.Set([]byte("k"), []byte("7")))
	require.NoError(t, s.Set([]byte("z"), []byte("y")))

	// Compaction repeats pairwise passes until the catalog fully
	// collapses, so even an auto-compacted catalog left above one
	// table by the trigger threshold comes down to a single SST here.
	require.NoError(t, s.Compaction())
	require.Equal(t, 1, s.SSTablesCount())

	value, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, "7", string(value))
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t, 100)
	_, err := s.Get([]byte("nope"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetRejectsReservedTombstoneValue(t *testing.T) {
	s := newTestStore(t, 100)
	err := s.Set([]byte("k"), []byte("~tombstone~"))
	require.Error(t, err)
}

func TestSetRejectsPairLargerThanBudget(t *testing.T) {
	s := newTestStore(t, 4)
	err := s.Set([]byte("key"), []byte("value"))
	require.ErrorIs(t, err, ErrPairExceedsBudget)
}

func TestDeleteAbsentKeyIsNotAnError(t *testing.T) {
	s := newTestStore(t, 100)
	require.NoError(t, s.Delete([]byte("never-set")))
}

func TestManualCompactionNoopBelowTwoTables(t *testing.T) {
	s := newTestStore(t, 100)
	require.NoError(t, s.Set([]byte("a"), []byte("1")))
	require.NoError(t, s.Compaction())
	require.Equal(t, 0, s.SSTablesCount())
}

// Restart reopens the same directory and should see flushed data but
// not data still sitting in the memtable: there is no write-ahead log,
// so memtable contents are lost on restart by design.
func TestRestartPreservesFlushedDataOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Dir = t.TempDir()
	cfg.MemtableByteBudget = 10

	s, err := Open(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		key := []byte{byte('a' + i), byte('a' + i)}
		require.NoError(t, s.Set(key, []byte("x")))
	}
	require.NoError(t, s.Set([]byte("uf"), []byte("gone")))

	reopened, err := Open(cfg, logging.NewNopLogger())
	require.NoError(t, err)

	value, err := reopened.Get([]byte{'a', 'a'})
	require.NoError(t, err)
	require.Equal(t, "x", string(value))

	_, err = reopened.Get([]byte("uf"))
	require.ErrorIs(t, err, ErrNotFound)
}
