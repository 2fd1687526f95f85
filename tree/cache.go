package tree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// NodeSnapshot is the state of a watched node at one point in time.
type NodeSnapshot struct {
	Path    string
	Data    []byte
	Version int64
	// Exists is false when the node is absent or has been deleted.
	Exists bool
}

func (s NodeSnapshot) differs(o NodeSnapshot) bool {
	return s.Exists != o.Exists || s.Version != o.Version || !bytes.Equal(s.Data, o.Data)
}

// NodeListener receives change notifications for a watched node.
type NodeListener interface {
	// NodeChanged is called on the registration's delivery goroutine with
	// the node's new state. A returned error is logged and counted; it does
	// not stop delivery.
	NodeChanged(snapshot NodeSnapshot) error
}

// Initializer is optionally implemented by a NodeListener that needs the
// cache before events begin, for example to keep it and read Current later.
type Initializer interface {
	Init(cache *NodeCache)
}

// ListenerFunc adapts a function to NodeListener.
type ListenerFunc func(snapshot NodeSnapshot) error

// NodeChanged calls f(snapshot).
func (f ListenerFunc) NodeChanged(snapshot NodeSnapshot) error {
	return f(snapshot)
}

// WatchMetricsRecorder records watch registration and delivery metrics.
type WatchMetricsRecorder interface {
	RecordRegistration(delta int)
	RecordDelivery(success bool)
}

// NodeCache keeps the latest state of one node, refreshed on every event of
// its subscription, and relays real changes to its listeners.
type NodeCache struct {
	svc       coord.Service
	path      string
	logger    *logging.Logger
	metrics   WatchMetricsRecorder
	listeners []NodeListener

	mu      sync.RWMutex
	current NodeSnapshot

	sub    coord.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	done   chan struct{}
}

func newNodeCache(svc coord.Service, path string, listeners []NodeListener, logger *logging.Logger, metrics WatchMetricsRecorder) *NodeCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &NodeCache{
		svc:       svc,
		path:      path,
		logger:    logging.Or(logger).With(map[string]any{"watch": path}),
		metrics:   metrics,
		listeners: listeners,
		current:   NodeSnapshot{Path: path},
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Path returns the watched path.
func (c *NodeCache) Path() string {
	return c.path
}

// Current returns the most recently observed state of the node.
func (c *NodeCache) Current() NodeSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// start subscribes, reads the initial state and launches delivery. When
// invokeOnAttach is false the initial state only primes the cache; when true
// and the node exists it is also dispatched to every listener before any
// later change.
func (c *NodeCache) start(ctx context.Context, invokeOnAttach bool) error {
	sub, err := c.svc.Subscribe(ctx, c.path)
	if err != nil {
		c.cancel()
		close(c.done)
		return remoteErr("subscribe", c.path, err)
	}
	c.sub = sub

	// Subscribing before reading means a change racing with the read is
	// either in the snapshot or still queued as an event.
	initial, err := c.read(ctx)
	if err != nil {
		_ = sub.Close()
		c.cancel()
		close(c.done)
		return remoteErr("get", c.path, err)
	}

	c.mu.Lock()
	c.current = initial
	c.mu.Unlock()

	go c.run(invokeOnAttach, initial)
	return nil
}

func (c *NodeCache) read(ctx context.Context) (NodeSnapshot, error) {
	data, stat, err := c.svc.Get(ctx, c.path)
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return NodeSnapshot{Path: c.path}, nil
		}
		return NodeSnapshot{}, err
	}
	return NodeSnapshot{Path: c.path, Data: data, Version: stat.Version, Exists: true}, nil
}

func (c *NodeCache) run(invokeOnAttach bool, initial NodeSnapshot) {
	defer close(c.done)

	// An absent node has no first snapshot to report.
	if invokeOnAttach && initial.Exists {
		c.dispatch(initial)
	}

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.sub.Events():
			if !ok {
				return
			}
			c.refresh(ev)
		}
	}
}

func (c *NodeCache) refresh(ev coord.Event) {
	next, err := c.read(c.ctx)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warnf("failed to refresh watched node", map[string]any{
				"event": ev.Type.String(),
				"error": err,
			})
		}
		return
	}

	c.mu.Lock()
	changed := next.differs(c.current)
	if changed {
		c.current = next
	}
	c.mu.Unlock()

	if changed {
		c.dispatch(next)
	}
}

func (c *NodeCache) dispatch(snapshot NodeSnapshot) {
	for _, l := range c.listeners {
		if c.closed.Load() {
			return
		}
		err := c.invoke(l, snapshot)
		if c.metrics != nil {
			c.metrics.RecordDelivery(err == nil)
		}
		if err != nil {
			c.logger.Errorf("listener failed", map[string]any{
				"version": snapshot.Version,
				"exists":  snapshot.Exists,
				"error":   err,
			})
		}
	}
}

func (c *NodeCache) invoke(l NodeListener, snapshot NodeSnapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.NodeChanged(snapshot)
}

// close stops delivery and waits for the delivery goroutine to exit. It must
// not be called from a listener of the same cache.
func (c *NodeCache) close() error {
	if c.closed.Swap(true) {
		<-c.done
		return nil
	}
	c.cancel()
	var err error
	if c.sub != nil {
		err = c.sub.Close()
	}
	<-c.done
	return err
}
