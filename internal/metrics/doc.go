// Package metrics provides Prometheus metrics for treekeeper.
//
// Exported families:
//   - treekeeper_coord_operation_latency_seconds and
//     treekeeper_coord_operations_total, by operation and status
//   - treekeeper_coord_reconnects_total
//   - treekeeper_watch_active_registrations
//   - treekeeper_watch_deliveries_total, by status
//
// Usage:
//
//	client := tree.New(svc,
//		tree.WithCoordMetrics(metrics.NewCoordMetrics()),
//		tree.WithWatchMetrics(metrics.NewWatchMetrics()),
//	)
//
//	srv := metrics.NewServer(":9090").WithHealth(func(ctx context.Context) error {
//		return client.Guard().EnsureConnected(ctx)
//	})
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Close()
package metrics
