// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the capture daemon's subsystems:
//   - Recorder: active capture processes, segments started/ended/failed,
//     supervision kills, and segment duration histogram
//   - Retention: tracked file gauge, removals, remove failures, dropped
//     entries, reconciled files, sweep duration histogram
//   - Archive: uploads, failures, bytes, queue depth, queue-full drops
//   - Events: published counts, publish failures, journal rotations
//
// Metrics are exposed via an HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	// Create and register metrics
//	recorderMetrics := metrics.NewRecorderMetrics()
//	retentionMetrics := metrics.NewRetentionMetrics()
//
//	// Wire into components
//	mgr := recorder.NewManager(engine, cfg, logger).WithMetrics(recorderMetrics)
//	tracker := retention.NewTracker(cfg, logger).WithMetrics(retentionMetrics)
//
//	// Start metrics server
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics
