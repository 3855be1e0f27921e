// Package metrics exposes a Prometheus registry tracking store
// throughput and catalog shape. RKV never runs its own HTTP server;
// an embedder mounts promhttp.HandlerFor(registry, ...) themselves.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters and gauges a Store updates as it
// serves writes, reads, flushes, and compactions.
type Metrics struct {
	Registry *prometheus.Registry

	Writes       prometheus.Counter
	Reads        prometheus.Counter
	ReadHits     prometheus.Counter
	Deletes      prometheus.Counter
	Flushes      prometheus.Counter
	Compactions  prometheus.Counter
	BytesWritten prometheus.Counter

	SSTablesCount prometheus.Gauge
	MemtableBytes prometheus.Gauge
}

// New builds a fresh, independently registered Metrics bundle so
// multiple Store instances in the same process don't collide on
// Prometheus's default global registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "writes_total", Help: "Total Set and Delete calls.",
		}),
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reads_total", Help: "Total Get calls.",
		}),
		ReadHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "read_hits_total", Help: "Get calls returning a live value.",
		}),
		Deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deletes_total", Help: "Total Delete calls.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flushes_total", Help: "Total memtable flushes.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "compactions_total", Help: "Total compaction passes.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_written_total", Help: "Bytes written across all flushed SSTs.",
		}),
		SSTablesCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sstables", Help: "Current number of SSTs in the catalog.",
		}),
		MemtableBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memtable_bytes", Help: "Current memtable byte count.",
		}),
	}

	reg.MustRegister(
		m.Writes, m.Reads, m.ReadHits, m.Deletes, m.Flushes,
		m.Compactions, m.BytesWritten, m.SSTablesCount, m.MemtableBytes,
	)
	return m
}
