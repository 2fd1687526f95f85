package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// DefaultSessionTimeout is used when Config.SessionTimeout is zero.
const DefaultSessionTimeout = 60 * time.Second

// Config configures a ZooKeeper session.
type Config struct {
	// Servers lists host:port addresses of the ensemble.
	Servers []string

	// Namespace, when set, roots every path under /<Namespace>. The
	// namespace node is created on first use.
	Namespace string

	// SessionTimeout is negotiated with the server.
	SessionTimeout time.Duration

	// RetryPolicy.BaseDelay spaces watch re-arm attempts after a failure.
	RetryPolicy coord.RetryPolicy

	// OnReconnect is called each time the session is re-established after
	// having been connected before.
	OnReconnect func()

	Logger *logging.Logger
}

// Service implements coord.Service on a ZooKeeper session.
type Service struct {
	conn      *zk.Conn
	servers   []string
	namespace string
	prefix    string
	rearm     time.Duration
	logger    *logging.Logger
	onReconn  func()

	mu            sync.Mutex
	connected     bool
	everConnected bool
	connCh        chan struct{}

	nsReady atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Connect starts a session against cfg.Servers. It returns immediately; the
// session connects in the background and reconnects on its own.
func Connect(cfg Config) (*Service, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("zookeeper: at least one server is required")
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	logger := logging.Or(cfg.Logger).With(map[string]any{"backend": "zookeeper"})

	conn, events, err := zk.Connect(cfg.Servers, timeout, zk.WithLogger(zkLogger{logger}))
	if err != nil {
		return nil, fmt.Errorf("zookeeper: connect: %w", err)
	}

	ns := normalizeNamespace(cfg.Namespace)
	s := &Service{
		conn:      conn,
		servers:   append([]string(nil), cfg.Servers...),
		namespace: ns,
		prefix:    namespacePrefix(ns),
		rearm:     cfg.RetryPolicy.BaseDelay,
		logger:    logger,
		onReconn:  cfg.OnReconnect,
		connCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.rearm <= 0 {
		s.rearm = coord.DefaultRetryPolicy().BaseDelay
	}

	s.wg.Add(1)
	go s.watchSession(events)
	return s, nil
}

// watchSession tracks the session state from the connection's event
// channel. The channel is closed when the connection is closed.
func (s *Service) watchSession(events <-chan zk.Event) {
	defer s.wg.Done()
	for ev := range events {
		if ev.Type != zk.EventSession {
			continue
		}
		switch ev.State {
		case zk.StateHasSession:
			s.setConnected(true)
		case zk.StateDisconnected, zk.StateExpired, zk.StateAuthFailed:
			s.setConnected(false)
		}
		s.logger.Debugf("session state changed", map[string]any{"state": ev.State.String()})
	}
	s.setConnected(false)
}

func (s *Service) setConnected(connected bool) {
	s.mu.Lock()
	if s.connected == connected {
		s.mu.Unlock()
		return
	}
	s.connected = connected
	reconnect := false
	if connected {
		reconnect = s.everConnected
		s.everConnected = true
		close(s.connCh)
	} else {
		s.connCh = make(chan struct{})
	}
	s.mu.Unlock()

	if connected {
		s.logger.Infof("session established", map[string]any{
			"servers":   s.servers,
			"sessionId": s.conn.SessionID(),
		})
	} else if !s.closed.Load() {
		s.logger.Warn("session lost")
	}
	if reconnect && s.onReconn != nil {
		s.onReconn()
	}
}

func (s *Service) connectedCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connCh
}

// begin is called before each remote call.
func (s *Service) begin(ctx context.Context) error {
	if s.closed.Load() {
		return coord.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ensureNamespace()
}

// ensureNamespace creates the namespace root and its ancestors once.
func (s *Service) ensureNamespace() error {
	if s.prefix == "" || s.nsReady.Load() {
		return nil
	}
	current := ""
	for _, seg := range strings.Split(s.prefix[1:], coord.Separator) {
		current += coord.Separator + seg
		_, err := s.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return mapError("create", current, err)
		}
	}
	s.nsReady.Store(true)
	return nil
}

// full maps a namespace-relative path to the server path.
func (s *Service) full(path string) string {
	if s.prefix == "" {
		return path
	}
	if coord.IsRoot(path) {
		return s.prefix
	}
	return s.prefix + path
}

// relative maps a server path back into the namespace.
func (s *Service) relative(full string) string {
	if s.prefix == "" {
		return full
	}
	rel := strings.TrimPrefix(full, s.prefix)
	if rel == "" {
		return coord.Separator
	}
	return rel
}

// Exists reports whether a node exists at path.
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.begin(ctx); err != nil {
		return false, err
	}
	ok, _, err := s.conn.Exists(s.full(path))
	if err != nil {
		return false, mapError("exists", path, err)
	}
	return ok, nil
}

// Create creates a node and returns its actual path, which differs from
// path for sequential kinds.
func (s *Service) Create(ctx context.Context, path string, data []byte, kind coord.Kind) (string, error) {
	if err := s.begin(ctx); err != nil {
		return "", err
	}
	actual, err := s.conn.Create(s.full(path), data, kindFlags(kind), zk.WorldACL(zk.PermAll))
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return "", fmt.Errorf("zookeeper: create %s: %w", path, coord.ErrNoParent)
		}
		return "", mapError("create", path, err)
	}
	return s.relative(actual), nil
}

// Delete removes a childless node regardless of its version.
func (s *Service) Delete(ctx context.Context, path string) error {
	if coord.IsRoot(path) {
		return fmt.Errorf("zookeeper: delete %s: %w", path, coord.ErrNotEmpty)
	}
	if err := s.begin(ctx); err != nil {
		return err
	}
	if err := s.conn.Delete(s.full(path), -1); err != nil {
		return mapError("delete", path, err)
	}
	return nil
}

// Get returns the payload and stat of a node.
func (s *Service) Get(ctx context.Context, path string) ([]byte, coord.Stat, error) {
	if err := s.begin(ctx); err != nil {
		return nil, coord.Stat{}, err
	}
	data, stat, err := s.conn.Get(s.full(path))
	if err != nil {
		return nil, coord.Stat{}, mapError("get", path, err)
	}
	return data, toStat(stat), nil
}

// Set overwrites the payload of a node regardless of its version.
func (s *Service) Set(ctx context.Context, path string, data []byte) (coord.Stat, error) {
	if err := s.begin(ctx); err != nil {
		return coord.Stat{}, err
	}
	stat, err := s.conn.Set(s.full(path), data, -1)
	if err != nil {
		return coord.Stat{}, mapError("set", path, err)
	}
	return toStat(stat), nil
}

// Children returns the names of the direct children of a node.
func (s *Service) Children(ctx context.Context, path string) ([]string, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	children, _, err := s.conn.Children(s.full(path))
	if err != nil {
		return nil, mapError("children", path, err)
	}
	return children, nil
}

// Subscribe watches path for creation, deletion and data changes. ZooKeeper
// watches fire once; the subscription re-arms after every event.
func (s *Service) Subscribe(ctx context.Context, path string) (coord.Subscription, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	sub := newSubscription(s, path)
	known, ch, err := sub.arm()
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	s.wg.Add(1)
	go sub.run(known, ch)
	return sub, nil
}

// Connected reports whether the session is established.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// WaitConnected blocks until the session is established or ctx is done.
func (s *Service) WaitConnected(ctx context.Context) error {
	if s.closed.Load() {
		return coord.ErrClosed
	}
	select {
	case <-s.connectedCh():
		return nil
	case <-s.done:
		return coord.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addresses returns the configured servers.
func (s *Service) Addresses() []string {
	return append([]string(nil), s.servers...)
}

// Namespace returns the configured namespace without slashes.
func (s *Service) Namespace() string {
	return s.namespace
}

// Close ends the session. Ephemeral nodes it created are removed by the
// server and all subscriptions are closed.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.conn.Close()
	s.wg.Wait()
	s.logger.Info("session closed")
	return nil
}

func kindFlags(kind coord.Kind) int32 {
	var flags int32
	if kind.IsEphemeral() {
		flags |= zk.FlagEphemeral
	}
	if kind.IsSequential() {
		flags |= zk.FlagSequence
	}
	return flags
}

func toStat(stat *zk.Stat) coord.Stat {
	if stat == nil {
		return coord.Stat{}
	}
	return coord.Stat{
		Version:   int64(stat.Version),
		Ephemeral: stat.EphemeralOwner != 0,
	}
}

func normalizeNamespace(ns string) string {
	return strings.Trim(ns, coord.Separator)
}

func namespacePrefix(ns string) string {
	if ns == "" {
		return ""
	}
	return coord.Separator + ns
}

var _ coord.Service = (*Service)(nil)
