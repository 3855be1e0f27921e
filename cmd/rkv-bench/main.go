// Command rkv-bench drives a Store with a synthetic write/read/delete
// workload and reports throughput, the way cmd/benchmark-lsm exercises
// the storage engine directly without a server in front of it.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/retrokv/rkv"
	"github.com/retrokv/rkv/internal/logging"
)

func main() {
	dir := flag.String("dir", "./data/bench", "Base directory for the store")
	writes := flag.Int("writes", 100000, "Number of Set calls")
	reads := flag.Int("reads", 10000, "Number of random Get calls")
	deletes := flag.Int("deletes", 1000, "Number of random Delete calls")
	valueSize := flag.Int("value-size", 256, "Value size in bytes")
	budget := flag.Int64("memtable-budget", 4<<20, "Memtable byte budget")
	flag.Parse()

	fmt.Printf("rkv-bench\n")
	fmt.Printf("=========\n")
	fmt.Printf("writes=%d reads=%d deletes=%d value-size=%d memtable-budget=%d\n\n",
		*writes, *reads, *deletes, *valueSize, *budget)

	os.RemoveAll(*dir)

	cfg := rkv.DefaultConfig()
	cfg.Name = "bench"
	cfg.Dir = *dir
	cfg.MemtableByteBudget = *budget

	store, err := rkv.Open(cfg, logging.NewJSONLogger(os.Stderr, logging.WarnLevel))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	value := make([]byte, *valueSize)
	for i := range value {
		value[i] = byte(rand.Intn(256))
	}

	fmt.Printf("writes: ")
	start := time.Now()
	for i := 0; i < *writes; i++ {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))
		if err := store.Set(key, value); err != nil {
			log.Fatalf("set: %v", err)
		}
	}
	report(*writes, time.Since(start))

	fmt.Printf("reads:  ")
	start = time.Now()
	found := 0
	for i := 0; i < *reads; i++ {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(rand.Intn(*writes)))
		if _, err := store.Get(key); err == nil {
			found++
		}
	}
	report(*reads, time.Since(start))
	fmt.Printf("  hit rate: %.1f%%\n", float64(found)*100/float64(*reads))

	fmt.Printf("deletes:")
	start = time.Now()
	for i := 0; i < *deletes; i++ {
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(rand.Intn(*writes)))
		if err := store.Delete(key); err != nil {
			log.Fatalf("delete: %v", err)
		}
	}
	report(*deletes, time.Since(start))

	if err := store.Compaction(); err != nil {
		log.Fatalf("compaction: %v", err)
	}

	fmt.Printf("\nfinal catalog: %d sstables, %d bytes resident in the memtable\n",
		store.SSTablesCount(), store.Size())
}

func report(n int, elapsed time.Duration) {
	perOp := elapsed.Microseconds()
	if n > 0 {
		perOp /= int64(n)
	}
	throughput := float64(n) / elapsed.Seconds()
	fmt.Printf(" %d ops in %v (%dµs/op, %.0f ops/sec)\n", n, elapsed, perOp, throughput)
}
