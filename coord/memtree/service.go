package memtree

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/treekeeper/treekeeper/coord"
)

// Session implements coord.Service on a Tree. Sessions start connected.
type Session struct {
	tree *Tree
	id   string

	mu        sync.Mutex
	connected bool
	closed    bool
	// connCh is closed while the session is connected and replaced by an
	// open channel on disconnect, so WaitConnected can select on it.
	connCh chan struct{}
	subs   map[*subscription]struct{}
}

// New creates a session on a fresh tree.
func New() *Session {
	return NewTree().NewSession()
}

// NewSession opens another connected session on the tree.
func (t *Tree) NewSession() *Session {
	connCh := make(chan struct{})
	close(connCh)
	return &Session{
		tree:      t,
		id:        uuid.NewString(),
		connected: true,
		connCh:    connCh,
		subs:      make(map[*subscription]struct{}),
	}
}

// Tree returns the tree the session operates on.
func (s *Session) Tree() *Tree {
	return s.tree
}

// ID returns the session identifier that owns its ephemeral nodes.
func (s *Session) ID() string {
	return s.id
}

// SetConnected simulates the session losing or regaining its connection.
// While disconnected every operation fails with coord.ErrDisconnected.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.connected == connected {
		return
	}
	s.connected = connected
	if connected {
		close(s.connCh)
	} else {
		s.connCh = make(chan struct{})
	}
}

// Expire simulates the server expiring the session: its ephemeral nodes are
// removed. The session itself stays usable, as with a re-established session.
func (s *Session) Expire() {
	s.tree.expire(s.id)
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return coord.ErrClosed
	}
	if !s.connected {
		return coord.ErrDisconnected
	}
	return nil
}

// Exists reports whether a node exists at path.
func (s *Session) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.tree.exists(path), nil
}

// Create creates a node.
func (s *Session) Create(ctx context.Context, path string, data []byte, kind coord.Kind) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.tree.create(path, data, kind, s.id)
}

// Delete removes a node.
func (s *Session) Delete(ctx context.Context, path string) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.tree.delete(path)
}

// Get returns a node's data and stat.
func (s *Session) Get(ctx context.Context, path string) ([]byte, coord.Stat, error) {
	if err := s.check(); err != nil {
		return nil, coord.Stat{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, coord.Stat{}, err
	}
	return s.tree.get(path)
}

// Set overwrites a node's data.
func (s *Session) Set(ctx context.Context, path string, data []byte) (coord.Stat, error) {
	if err := s.check(); err != nil {
		return coord.Stat{}, err
	}
	if err := ctx.Err(); err != nil {
		return coord.Stat{}, err
	}
	return s.tree.set(path, data)
}

// Children lists a node's children.
func (s *Session) Children(ctx context.Context, path string) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.tree.children(path)
}

// Subscribe starts watching path.
func (s *Session) Subscribe(ctx context.Context, path string) (coord.Subscription, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := newSubscription(s.tree, path)
	s.tree.watch(sub)

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return &sessionSubscription{subscription: sub, session: s}, nil
}

// Connected reports whether the session is connected.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && !s.closed
}

// WaitConnected blocks until the session is connected or ctx is done.
func (s *Session) WaitConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return coord.ErrClosed
	}
	ch := s.connCh
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addresses returns a synthetic address naming the session.
func (s *Session) Addresses() []string {
	return []string{fmt.Sprintf("memtree://%s", s.id)}
}

// Namespace returns "": memtree has no namespaces.
func (s *Session) Namespace() string {
	return ""
}

// Close ends the session: its subscriptions are closed and its ephemeral
// nodes are removed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for sub := range subs {
		_ = sub.Close()
	}
	s.tree.expire(s.id)
	return nil
}

// sessionSubscription detaches itself from the session's set on Close.
type sessionSubscription struct {
	*subscription
	session *Session
}

func (s *sessionSubscription) Close() error {
	s.session.mu.Lock()
	delete(s.session.subs, s.subscription)
	s.session.mu.Unlock()
	return s.subscription.Close()
}

// Ensure Session implements coord.Service.
var _ coord.Service = (*Session)(nil)
