// Package rkv implements an embeddable, single-node, persistent
// ordered key-value store organized as a log-structured merge tree.
package rkv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/retrokv/rkv/internal/archive"
	"github.com/retrokv/rkv/internal/codec"
	"github.com/retrokv/rkv/internal/compaction"
	"github.com/retrokv/rkv/internal/events"
	"github.com/retrokv/rkv/internal/logging"
	"github.com/retrokv/rkv/internal/metrics"
	"github.com/retrokv/rkv/internal/sstable"
)

// compactionTriggerThreshold is the catalog length above which a
// successful flush runs Compaction before returning.
const compactionTriggerThreshold = 2

// maxSearchWorkers bounds the fan-out of the parallel catalog search.
const maxSearchWorkers = 10

// Store is the embeddable LSM engine: a memtable plus an ordered
// catalog of immutable SSTs. The zero value is not usable; construct
// one with Open. A *Store is safe for concurrent use by multiple
// goroutines.
type Store struct {
	name string
	dir  string
	ext  string

	memBudget int64

	memMu sync.Mutex
	mem   *memtable

	sizeMu  sync.Mutex
	memSize int64

	catalogMu    sync.RWMutex
	catalog      []*sstable.SST
	compactionMu sync.Mutex

	bufferCap int

	log      logging.Logger
	metrics  *metrics.Metrics
	bus      *events.Bus
	archiver *archive.S3Archiver

	closed bool
}

// Open validates cfg, repopulates the catalog from whatever SSTs
// already exist on disk (filename-sorted), and returns a ready-to-use
// Store.
func Open(cfg Config, log logging.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	catalog, err := sstable.Discover(cfg.dataDir(), cfg.Ext)
	if err != nil {
		return nil, newStoreError("Open", cfg.dataDir(), err)
	}

	s := &Store{
		name:      cfg.Name,
		dir:       cfg.Dir,
		ext:       cfg.Ext,
		memBudget: cfg.MemtableByteBudget,
		bufferCap: cfg.CompactionBufferCap,
		mem:       newMemtable(),
		catalog:   catalog,
		log:       log.With(logging.Component("store"), logging.String("name", cfg.Name)),
		metrics:   metrics.New("rkv_" + cfg.Name),
	}
	s.metrics.SSTablesCount.Set(float64(len(catalog)))

	if cfg.Events.Enabled {
		bus, err := events.Listen(cfg.Events.Address)
		if err != nil {
			return nil, newStoreError("Open", cfg.Events.Address, err)
		}
		s.bus = bus
	}

	if cfg.Archive.Enabled {
		archiver, err := archive.New(context.Background(), cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
		if err != nil {
			return nil, newStoreError("Open", cfg.Archive.Bucket, err)
		}
		s.archiver = archiver
	}

	s.log.Info("store opened", logging.Count(len(catalog)))
	return s, nil
}

// Metrics returns the store's metrics bundle; its Registry field is
// what an embedder mounts under their own HTTP handler.
func (s *Store) Metrics() *metrics.Metrics { return s.metrics }

// Close releases the optional event bus. It does not flush the
// memtable: data still buffered at shutdown is lost by design.
func (s *Store) Close() error {
	s.memMu.Lock()
	s.closed = true
	s.memMu.Unlock()
	return s.bus.Close()
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return newStoreError("validate", "", fmt.Errorf("empty key"))
	}
	if len(key) > codec.MaxKeyLen {
		return newStoreError("validate", "", ErrKeyTooLarge)
	}
	return nil
}

func validateValue(value []byte) error {
	if uint64(len(value)) > codec.MaxValueLen {
		return newStoreError("validate", "", ErrValueTooLarge)
	}
	if codec.IsTombstone(value) {
		return newStoreError("validate", "", ErrReservedValue)
	}
	return nil
}

// Set adds (key, value) to the memtable, overwriting any prior
// mapping. If the pair alone exceeds the configured budget it is
// rejected with ErrPairExceedsBudget. Otherwise, if adding it would
// push the running byte count over budget, the memtable is flushed
// first and the counter restarts from this pair.
func (s *Store) Set(key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}
	return s.set(key, value)
}

func (s *Store) set(key, value []byte) error {
	pairSize := int64(len(key) + len(value))
	if pairSize > s.memBudget {
		return newStoreError("Set", "", ErrPairExceedsBudget)
	}

	s.sizeMu.Lock()
	newSize := s.memSize + pairSize
	overflow := newSize > s.memBudget
	if !overflow {
		s.memSize = newSize
	}
	s.sizeMu.Unlock()

	if overflow {
		if err := s.flush(); err != nil {
			return err
		}
		s.sizeMu.Lock()
		s.memSize = pairSize
		s.sizeMu.Unlock()
	}

	s.memMu.Lock()
	s.mem.put(key, value)
	s.memMu.Unlock()

	s.metrics.Writes.Inc()
	s.metrics.MemtableBytes.Set(float64(s.Size()))
	return nil
}

// Delete writes a tombstone for key into the memtable. It is not an
// error to delete an absent key.
func (s *Store) Delete(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.set(key, codec.Tombstone); err != nil {
		return err
	}
	s.metrics.Deletes.Inc()
	return nil
}

// Get returns the most recent live value for key: the memtable is
// consulted first (tombstone honored), then the catalog newest to
// oldest. A tombstone hit, wherever it occurs, short-circuits to
// ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.metrics.Reads.Inc()

	s.memMu.Lock()
	value, ok := s.mem.get(key)
	s.memMu.Unlock()
	if ok {
		if codec.IsTombstone(value) {
			return nil, ErrNotFound
		}
		s.metrics.ReadHits.Inc()
		return value, nil
	}

	s.catalogMu.RLock()
	catalog := make([]*sstable.SST, len(s.catalog))
	copy(catalog, s.catalog)
	s.catalogMu.RUnlock()

	if len(catalog) == 0 {
		return nil, ErrNotFound
	}

	value, found, err := searchCatalog(catalog, key)
	if err != nil {
		return nil, newStoreError("Get", "", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	s.metrics.ReadHits.Inc()
	return value, nil
}

// catalogHit is the shared "best hit so far" record the parallel
// catalog search races workers against.
type catalogHit struct {
	index     int
	value     []byte
	tombstone bool
}

// searchCatalog fans the lookup out across up to maxSearchWorkers
// goroutines, each scanning a contiguous, ascending slice of the
// catalog. The highest catalog index at which key is present (live
// or tombstone) wins; a tombstone there reports as not-found so a
// newer deletion always masks an older value.
func searchCatalog(catalog []*sstable.SST, key []byte) ([]byte, bool, error) {
	n := len(catalog)
	workers := n
	if workers > maxSearchWorkers {
		workers = maxSearchWorkers
	}
	chunkSize := (n + workers - 1) / workers

	var mu sync.Mutex
	var best *catalogHit

	g := new(errgroup.Group)
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		start, end := start, end

		g.Go(func() error {
			for i := start; i < end; i++ {
				mu.Lock()
				skip := best != nil && best.index >= i
				mu.Unlock()
				if skip {
					continue
				}

				value, found, tombstone, err := catalog[i].SearchRaw(key)
				if err != nil {
					return err
				}
				if !found {
					continue
				}

				mu.Lock()
				if best == nil || i > best.index {
					best = &catalogHit{index: i, value: value, tombstone: tombstone}
				}
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	if best == nil || best.tombstone {
		return nil, false, nil
	}
	return best.value, true, nil
}

// SSTablesCount returns the current catalog length.
func (s *Store) SSTablesCount() int {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return len(s.catalog)
}

// Size returns the current memtable byte count.
func (s *Store) Size() int64 {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	return s.memSize
}

// flush writes the memtable out to a new level-1 SST, appends it to
// the catalog tail, and resets the memtable. A flush failure leaves
// the memtable untouched and removes any partially written SST.
func (s *Store) flush() error {
	s.memMu.Lock()
	if s.mem.len() == 0 {
		s.memMu.Unlock()
		return nil
	}
	keys := s.mem.sortedKeys()
	snapshot := make([][2][]byte, 0, len(keys))
	for _, k := range keys {
		v := s.mem.data[k]
		snapshot = append(snapshot, [2][]byte{[]byte(k), v})
	}
	s.memMu.Unlock()

	w, err := sstable.NewWriter(s.dataDir(), 1, s.ext)
	if err != nil {
		return newStoreError("flush", s.dataDir(), err)
	}
	for _, kv := range snapshot {
		if err := w.Append(kv[0], kv[1]); err != nil {
			w.Abort()
			return newStoreError("flush", s.dataDir(), err)
		}
	}
	sst, err := w.Finish()
	if err != nil {
		return newStoreError("flush", s.dataDir(), err)
	}

	s.catalogMu.Lock()
	s.catalog = append(s.catalog, sst)
	catalogLen := len(s.catalog)
	s.catalogMu.Unlock()

	s.memMu.Lock()
	s.mem.reset()
	s.memMu.Unlock()

	s.metrics.Flushes.Inc()
	s.metrics.BytesWritten.Add(float64(w.BytesWritten()))
	s.metrics.SSTablesCount.Set(float64(catalogLen))
	s.log.Info("memtable flushed",
		logging.Path(sst.DataPath), logging.SSTableLevel(sst.Level), logging.Count(len(snapshot)))

	if s.archiver != nil {
		s.archiver.UploadAsync(sst.DataPath, sst.IndexPath, func(err error) {
			s.log.Warn("archive upload failed", logging.Path(sst.DataPath), logging.Error(err))
		})
	}
	if s.bus != nil {
		if err := s.bus.Publish(flushEvent(sst)); err != nil {
			s.log.Warn("event publish failed", logging.Error(err))
		}
	}

	if catalogLen > compactionTriggerThreshold {
		if err := s.Compaction(); err != nil {
			s.log.Warn("post-flush compaction failed", logging.Error(err))
		}
	}
	return nil
}

// Compaction manually triggers compaction of the current catalog. It
// is safe to call any time and is a no-op if fewer than two SSTs
// exist. Otherwise it repeats pairwise passes, each halving the
// catalog, until a single SST remains.
func (s *Store) Compaction() error {
	s.compactionMu.Lock()
	defer s.compactionMu.Unlock()

	s.catalogMu.RLock()
	current := make([]*sstable.SST, len(s.catalog))
	copy(current, s.catalog)
	s.catalogMu.RUnlock()

	if len(current) < 2 {
		return nil
	}

	snapshotLen := len(current)
	passes := 0
	for len(current) >= 2 {
		merged, err := compaction.Compact(current, s.dataDir(), s.ext, s.bufferCap, s.log)
		if err != nil {
			return newStoreError("Compaction", s.dataDir(), err)
		}
		current = merged
		passes++
	}

	s.catalogMu.Lock()
	// Flushes that finished while the merge ran appended to the tail;
	// they are newer than every merged table and stay after them.
	s.catalog = append(current, s.catalog[snapshotLen:]...)
	catalogLen := len(s.catalog)
	s.catalogMu.Unlock()

	s.metrics.Compactions.Add(float64(passes))
	s.metrics.SSTablesCount.Set(float64(catalogLen))
	s.log.Info("compaction complete", logging.Count(catalogLen), logging.Int("passes", passes))

	for _, sst := range current {
		s.log.Info("compaction wrote sstable", logging.Path(sst.DataPath), logging.SSTableLevel(sst.Level))
		if s.archiver != nil {
			s.archiver.UploadAsync(sst.DataPath, sst.IndexPath, func(err error) {
				s.log.Warn("archive upload failed", logging.Path(sst.DataPath), logging.Error(err))
			})
		}
		if s.bus != nil {
			if err := s.bus.Publish(compactionEvent(sst)); err != nil {
				s.log.Warn("event publish failed", logging.Error(err))
			}
		}
	}
	return nil
}

func (s *Store) dataDir() string {
	return Config{Name: s.name, Dir: s.dir, Ext: s.ext}.dataDir()
}

func flushEvent(sst *sstable.SST) events.Event {
	return events.Event{Type: events.TypeFlush, SSTable: sst.ID, Level: sst.Level, At: time.Now()}
}

func compactionEvent(sst *sstable.SST) events.Event {
	return events.Event{Type: events.TypeCompaction, SSTable: sst.ID, Level: sst.Level, At: time.Now()}
}
