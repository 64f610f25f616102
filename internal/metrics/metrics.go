// Package metrics provides lock-free counters for the STOQ transport,
// mirrored to Prometheus for scraping.
//
// Three layers exist side by side:
//
//   - counters.go: sync/atomic counters updated on every hot-path
//     operation (tokenize, shard, reassemble, hop, connection
//     lifecycle). These never block and never allocate.
//   - prometheus.go: promauto-registered metrics that mirror the
//     atomic counters, exposed for scraping. Mirroring happens when a
//     Snapshot is passed to Publish, not on every increment, so
//     Prometheus overhead never lands on the hot path.
//   - latency.go: a bounded ring buffer of recent latency samples used
//     to compute percentiles without an unbounded histogram.
//
// Usage:
//
//	m := metrics.New()
//	m.RecordPacketTokenized()
//	m.RecordShardsReassembled()
//	snap := m.Snapshot()
package metrics
