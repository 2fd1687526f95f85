// Package memtree implements coord.Service with an in-memory node tree.
//
// A Tree holds the nodes; any number of Sessions may operate on the same
// Tree, which lets tests model several clients sharing one coordination
// service. Ephemeral nodes belong to the session that created them and are
// removed when that session expires or closes.
//
// Watch events are delivered asynchronously on a goroutine per subscription,
// in the order the tree applied the changes.
package memtree

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/treekeeper/treekeeper/coord"
)

type node struct {
	data    []byte
	version int64
	owner   string // session ID for ephemeral nodes, "" otherwise
	seq     int64  // next sequence number handed to sequential children
}

// Tree is an in-memory node tree shared by one or more sessions.
type Tree struct {
	mu       sync.Mutex
	nodes    map[string]*node
	watchers map[string]map[*subscription]struct{}
}

// NewTree creates an empty tree containing only the root node.
func NewTree() *Tree {
	return &Tree{
		nodes:    map[string]*node{coord.Separator: {}},
		watchers: make(map[string]map[*subscription]struct{}),
	}
}

// Len returns the number of nodes, including the root.
func (t *Tree) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Paths returns every node path in lexicographic order.
func (t *Tree) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, 0, len(t.nodes))
	for p := range t.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (t *Tree) exists(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.nodes[path]
	return ok
}

func (t *Tree) create(path string, data []byte, kind coord.Kind, owner string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if coord.IsRoot(path) {
		return "", fmt.Errorf("memtree: create %s: %w", path, coord.ErrNodeExists)
	}
	parent, ok := t.nodes[coord.ParentPath(path)]
	if !ok {
		return "", fmt.Errorf("memtree: create %s: %w", path, coord.ErrNoParent)
	}
	if parent.owner != "" {
		return "", fmt.Errorf("memtree: create %s: %w", path, coord.ErrNoChildrenForEphemerals)
	}

	actual := path
	if kind.IsSequential() {
		actual = fmt.Sprintf("%s%010d", path, parent.seq)
		parent.seq++
	}
	if _, ok := t.nodes[actual]; ok {
		return "", fmt.Errorf("memtree: create %s: %w", actual, coord.ErrNodeExists)
	}

	n := &node{data: cloneBytes(data)}
	if kind.IsEphemeral() {
		n.owner = owner
	}
	t.nodes[actual] = n
	t.notifyLocked(actual, coord.EventCreated)
	return actual, nil
}

func (t *Tree) delete(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[path]; !ok {
		return fmt.Errorf("memtree: delete %s: %w", path, coord.ErrNoNode)
	}
	if coord.IsRoot(path) || len(t.childrenLocked(path)) > 0 {
		return fmt.Errorf("memtree: delete %s: %w", path, coord.ErrNotEmpty)
	}
	delete(t.nodes, path)
	t.notifyLocked(path, coord.EventDeleted)
	return nil
}

func (t *Tree) get(path string) ([]byte, coord.Stat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[path]
	if !ok {
		return nil, coord.Stat{}, fmt.Errorf("memtree: get %s: %w", path, coord.ErrNoNode)
	}
	return cloneBytes(n.data), coord.Stat{Version: n.version, Ephemeral: n.owner != ""}, nil
}

func (t *Tree) set(path string, data []byte) (coord.Stat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[path]
	if !ok {
		return coord.Stat{}, fmt.Errorf("memtree: set %s: %w", path, coord.ErrNoNode)
	}
	n.data = cloneBytes(data)
	n.version++
	t.notifyLocked(path, coord.EventDataChanged)
	return coord.Stat{Version: n.version, Ephemeral: n.owner != ""}, nil
}

func (t *Tree) children(path string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[path]; !ok {
		return nil, fmt.Errorf("memtree: children %s: %w", path, coord.ErrNoNode)
	}
	return t.childrenLocked(path), nil
}

func (t *Tree) childrenLocked(path string) []string {
	prefix := path + coord.Separator
	if coord.IsRoot(path) {
		prefix = coord.Separator
	}
	children := []string{}
	for p := range t.nodes {
		if coord.IsRoot(p) || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest != "" && !strings.Contains(rest, coord.Separator) {
			children = append(children, rest)
		}
	}
	return children
}

// expire removes every ephemeral node owned by the session.
func (t *Tree) expire(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var owned []string
	for p, n := range t.nodes {
		if n.owner == owner {
			owned = append(owned, p)
		}
	}
	sort.Strings(owned)
	for _, p := range owned {
		delete(t.nodes, p)
		t.notifyLocked(p, coord.EventDeleted)
	}
}

func (t *Tree) watch(s *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs, ok := t.watchers[s.path]
	if !ok {
		subs = make(map[*subscription]struct{})
		t.watchers[s.path] = subs
	}
	subs[s] = struct{}{}
}

func (t *Tree) unwatch(s *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subs, ok := t.watchers[s.path]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(t.watchers, s.path)
		}
	}
}

// Watchers returns the number of open subscriptions on path.
func (t *Tree) Watchers(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.watchers[path])
}

func (t *Tree) notifyLocked(path string, typ coord.EventType) {
	for s := range t.watchers[path] {
		s.enqueue(coord.Event{Type: typ, Path: path})
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
