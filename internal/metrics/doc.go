// Package metrics provides Prometheus metrics for shard retention.
//
// Per shard it exposes:
//   - the oldest translog generation still required
//   - the number of pinned translog generations
//   - the soft-deletes retained sequence number floor
//   - whether a retention lock is holding that floor in place
//   - a counter of operations rejected as invariant violations
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	m := metrics.NewRetentionMetrics()
//	r, err := shard.New(cfg.Retention, gcp, leases, shard.WithMetrics(m))
//
//	srv := metrics.NewServer(":9090")
//	srv.Start()
//	defer srv.Close()
package metrics
