package rkv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreErrorMessageWithPath(t *testing.T) {
	err := newStoreError("flush", "/data/1-abc.rkv", ErrCorrupt)
	require.Equal(t, "rkv: flush /data/1-abc.rkv: rkv: corrupt sstable", err.Error())
}

func TestStoreErrorMessageWithoutPath(t *testing.T) {
	err := newStoreError("set", "", ErrPairExceedsBudget)
	require.Equal(t, "rkv: set: rkv: key/value pair exceeds memtable byte budget", err.Error())
}

func TestStoreErrorUnwrap(t *testing.T) {
	err := newStoreError("flush", "path", ErrCorrupt)
	require.Equal(t, ErrCorrupt, errors.Unwrap(err))
}

func TestStoreErrorIsMatchesWrappedSentinel(t *testing.T) {
	err := newStoreError("flush", "path", ErrCorrupt)
	require.True(t, errors.Is(err, ErrCorrupt))
	require.False(t, errors.Is(err, ErrNotFound))
}
