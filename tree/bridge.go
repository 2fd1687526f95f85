package tree

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// ErrBridgeClosed is returned by ListenNode after CloseAll.
var ErrBridgeClosed = errors.New("tree: watch bridge closed")

// Bridge attaches listeners to nodes. Each ListenNode call owns its own
// subscription and delivery goroutine, so registrations on the same path are
// independent of each other.
type Bridge struct {
	svc     coord.Service
	guard   *Guard
	logger  *logging.Logger
	metrics WatchMetricsRecorder

	mu     sync.Mutex
	regs   map[*Registration]struct{}
	closed bool
}

// NewBridge creates a Bridge. metrics may be nil.
func NewBridge(svc coord.Service, guard *Guard, logger *logging.Logger, metrics WatchMetricsRecorder) *Bridge {
	return &Bridge{
		svc:     svc,
		guard:   guard,
		logger:  logger,
		metrics: metrics,
		regs:    make(map[*Registration]struct{}),
	}
}

// Registration is the handle for one ListenNode call. Closing it detaches
// its listeners and releases its subscription.
type Registration struct {
	bridge *Bridge
	cache  *NodeCache
	once   sync.Once
	err    error
}

// Path returns the watched path.
func (r *Registration) Path() string {
	return r.cache.Path()
}

// Cache returns the node cache backing this registration.
func (r *Registration) Cache() *NodeCache {
	return r.cache
}

// Close stops delivery. After Close returns no listener of this registration
// is invoked again. Close is idempotent and must not be called synchronously
// from one of the registration's own listeners.
func (r *Registration) Close() error {
	r.once.Do(func() {
		r.err = r.cache.close()
		r.bridge.remove(r)
	})
	return r.err
}

// ListenNode watches path and relays its changes to listeners, in the order
// given. The node need not exist. Listeners implementing Initializer receive
// the cache before it starts.
//
// With invokeOnAttach true the state read at attach time is delivered to
// every listener first, unless the node is absent. With false it only primes
// the cache and listeners see later changes only.
func (b *Bridge) ListenNode(ctx context.Context, path string, invokeOnAttach bool, listeners ...NodeListener) (*Registration, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if b.isClosed() {
		return nil, ErrBridgeClosed
	}
	if err := b.guard.EnsureConnected(ctx); err != nil {
		return nil, err
	}

	ls := make([]NodeListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			ls = append(ls, l)
		}
	}

	cache := newNodeCache(b.svc, path, ls, b.logger, b.metrics)
	for _, l := range ls {
		if init, ok := l.(Initializer); ok {
			init.Init(cache)
		}
	}

	if err := cache.start(ctx, invokeOnAttach); err != nil {
		return nil, err
	}

	// CloseAll may have run while the cache was starting.
	reg := &Registration{bridge: b, cache: cache}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = cache.close()
		return nil, ErrBridgeClosed
	}
	b.regs[reg] = struct{}{}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordRegistration(1)
	}
	logging.ContextLogger(ctx, b.logger).Debugf("listener attached", map[string]any{
		"path":           path,
		"listeners":      len(ls),
		"invokeOnAttach": invokeOnAttach,
	})
	return reg, nil
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Registrations returns the number of open registrations.
func (b *Bridge) Registrations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.regs)
}

func (b *Bridge) remove(r *Registration) {
	b.mu.Lock()
	_, ok := b.regs[r]
	delete(b.regs, r)
	b.mu.Unlock()
	if ok && b.metrics != nil {
		b.metrics.RecordRegistration(-1)
	}
}

// CloseAll closes every open registration and rejects new ones. It returns
// the first close error.
func (b *Bridge) CloseAll() error {
	b.mu.Lock()
	b.closed = true
	regs := make([]*Registration, 0, len(b.regs))
	for r := range b.regs {
		regs = append(regs, r)
	}
	b.mu.Unlock()

	var g errgroup.Group
	for _, r := range regs {
		g.Go(r.Close)
	}
	return g.Wait()
}
