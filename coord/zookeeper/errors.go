package zookeeper

import (
	"errors"
	"fmt"

	"github.com/go-zookeeper/zk"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// faults maps client errors onto coord faults. Anything else passes through
// wrapped as is.
var faults = []struct {
	zk    error
	coord error
}{
	{zk.ErrNoNode, coord.ErrNoNode},
	{zk.ErrNodeExists, coord.ErrNodeExists},
	{zk.ErrNotEmpty, coord.ErrNotEmpty},
	{zk.ErrNoChildrenForEphemerals, coord.ErrNoChildrenForEphemerals},
	{zk.ErrClosing, coord.ErrClosed},
	{zk.ErrConnectionClosed, coord.ErrDisconnected},
	{zk.ErrSessionExpired, coord.ErrDisconnected},
	{zk.ErrNoServer, coord.ErrDisconnected},
}

func mapError(op, path string, err error) error {
	for _, f := range faults {
		if errors.Is(err, f.zk) {
			return fmt.Errorf("zookeeper: %s %s: %w", op, path, f.coord)
		}
	}
	return fmt.Errorf("zookeeper: %s %s: %w", op, path, err)
}

// zkLogger routes the client library's Printf logging into a Logger.
type zkLogger struct {
	l *logging.Logger
}

func (z zkLogger) Printf(format string, args ...any) {
	z.l.Infof(fmt.Sprintf(format, args...), map[string]any{"component": "zk"})
}
