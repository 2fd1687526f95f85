package main

import (
	"context"
	"fmt"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/coord/memtree"
	"github.com/treekeeper/treekeeper/coord/oxia"
	"github.com/treekeeper/treekeeper/coord/zookeeper"
	"github.com/treekeeper/treekeeper/internal/config"
	"github.com/treekeeper/treekeeper/internal/logging"
	"github.com/treekeeper/treekeeper/internal/metrics"
)

func dialBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.CoordMetrics) (coord.Service, error) {
	co := cfg.Coordination
	switch co.Backend {
	case config.BackendZooKeeper:
		svc, err := zookeeper.Connect(zookeeper.Config{
			Servers:        co.Servers,
			Namespace:      co.Namespace,
			SessionTimeout: co.SessionTimeout,
			RetryPolicy:    co.RetryPolicy(),
			OnReconnect:    m.RecordReconnect,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil
	case config.BackendOxia:
		svc, err := oxia.Connect(ctx, oxia.Config{
			ServiceAddress: co.Servers[0],
			Namespace:      co.Namespace,
			RequestTimeout: co.RequestTimeout,
			SessionTimeout: co.SessionTimeout,
			RetryPolicy:    co.RetryPolicy(),
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil
	case config.BackendMemory:
		logger.Warn("memory backend: the tree lives only for this invocation")
		return memtree.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", co.Backend)
	}
}
