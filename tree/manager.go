package tree

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// CreateOption configures a CreateNode call.
type CreateOption func(*createOptions)

type createOptions struct {
	data []byte
}

// WithData sets the payload of the node being created. Ancestors created on
// the way are always empty.
func WithData(data []byte) CreateOption {
	return func(o *createOptions) {
		o.data = data
	}
}

// Manager implements node operations on top of a coord.Service.
//
// Recursive operations walk the tree one level at a time on the calling
// goroutine. They are not atomic: if level k fails, levels before k stay
// created (or deleted).
type Manager struct {
	svc    coord.Service
	guard  *Guard
	logger *logging.Logger
}

// NewManager creates a Manager. A nil logger uses the global logger.
func NewManager(svc coord.Service, guard *Guard, logger *logging.Logger) *Manager {
	return &Manager{svc: svc, guard: guard, logger: logger}
}

func (m *Manager) begin(ctx context.Context, path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	return m.guard.EnsureConnected(ctx)
}

// CheckExists reports whether a node exists at path. A missing node is not
// an error.
func (m *Manager) CheckExists(ctx context.Context, path string) (bool, error) {
	if err := m.begin(ctx, path); err != nil {
		return false, err
	}
	ok, err := m.svc.Exists(ctx, path)
	if err != nil {
		return false, remoteErr("exists", path, err)
	}
	return ok, nil
}

// CreateNode creates the node at path with the given kind. Missing ancestors
// are created as persistent nodes; an ancestor created concurrently by
// another client counts as created.
//
// For sequential kinds a node is always created and its server-assigned path
// is returned. Otherwise the node is created only if absent, and path is
// returned either way.
func (m *Manager) CreateNode(ctx context.Context, path string, kind coord.Kind, opts ...CreateOption) (string, error) {
	if err := m.begin(ctx, path); err != nil {
		return "", err
	}
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	segments := SplitPath(path)
	if len(segments) == 0 {
		return path, nil
	}
	log := logging.ContextLogger(ctx, m.logger)

	current := ""
	for _, seg := range segments[:len(segments)-1] {
		current = current + coord.Separator + seg
		ok, err := m.svc.Exists(ctx, current)
		if err != nil {
			return "", remoteErr("exists", current, err)
		}
		if ok {
			continue
		}
		if _, err := m.svc.Create(ctx, current, nil, coord.Persistent); err != nil {
			if !errors.Is(err, coord.ErrNodeExists) {
				return "", remoteErr("create", current, err)
			}
			log.Debugf("ancestor created concurrently", map[string]any{"path": current})
			continue
		}
		log.Debugf("ancestor created", map[string]any{"path": current})
	}

	current = current + coord.Separator + segments[len(segments)-1]
	if !kind.IsSequential() {
		ok, err := m.svc.Exists(ctx, current)
		if err != nil {
			return "", remoteErr("exists", current, err)
		}
		if ok {
			return path, nil
		}
	}

	actual, err := m.svc.Create(ctx, current, o.data, kind)
	if err != nil {
		return "", remoteErr("create", current, err)
	}
	log.Debugf("node created", map[string]any{"path": actual, "kind": kind.String()})
	return actual, nil
}

// DeleteNode deletes the node at path and all its descendants, children
// first. Deleting a missing node is a no-op, and nodes deleted concurrently
// by another client count as deleted. The root itself is never deleted; only
// its descendants are.
func (m *Manager) DeleteNode(ctx context.Context, path string) error {
	if err := m.begin(ctx, path); err != nil {
		return err
	}

	type frame struct {
		path     string
		expanded bool
	}
	stack := []frame{{path: path}}
	deleted := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.expanded {
			if coord.IsRoot(f.path) {
				continue
			}
			if err := m.svc.Delete(ctx, f.path); err != nil {
				if errors.Is(err, coord.ErrNoNode) {
					continue
				}
				return remoteErr("delete", f.path, err)
			}
			deleted++
			continue
		}

		children, err := m.svc.Children(ctx, f.path)
		if err != nil {
			if errors.Is(err, coord.ErrNoNode) {
				continue
			}
			return remoteErr("children", f.path, err)
		}
		stack = append(stack, frame{path: f.path, expanded: true})
		for _, child := range children {
			stack = append(stack, frame{path: coord.ChildPath(f.path, child)})
		}
	}

	if deleted > 0 {
		logging.ContextLogger(ctx, m.logger).Debugf("subtree deleted", map[string]any{
			"path":  path,
			"nodes": deleted,
		})
	}
	return nil
}

// GetData returns the payload of the node at path, or ErrNodeNotFound.
func (m *Manager) GetData(ctx context.Context, path string) ([]byte, error) {
	if err := m.begin(ctx, path); err != nil {
		return nil, err
	}
	data, _, err := m.svc.Get(ctx, path)
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return nil, notFound(path)
		}
		return nil, remoteErr("get", path, err)
	}
	return data, nil
}

// SetData overwrites the payload of the node at path, or returns
// ErrNodeNotFound. No version check is made.
func (m *Manager) SetData(ctx context.Context, path string, data []byte) error {
	if err := m.begin(ctx, path); err != nil {
		return err
	}
	if _, err := m.svc.Set(ctx, path, data); err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return notFound(path)
		}
		return remoteErr("set", path, err)
	}
	return nil
}

// GetChildren returns the child names of the node at path in no particular
// order. found is false if the node does not exist.
func (m *Manager) GetChildren(ctx context.Context, path string) (children []string, found bool, err error) {
	if err := m.begin(ctx, path); err != nil {
		return nil, false, err
	}
	children, err = m.svc.Children(ctx, path)
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return nil, false, nil
		}
		return nil, false, remoteErr("children", path, err)
	}
	if children == nil {
		children = []string{}
	}
	return children, true, nil
}

// FindChildren returns the children of path whose whole name matches
// pattern (a regexp). found is false if the node does not exist.
func (m *Manager) FindChildren(ctx context.Context, path, pattern string) (matched []string, found bool, err error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	children, found, err := m.GetChildren(ctx, path)
	if err != nil || !found {
		return nil, found, err
	}

	matched = []string{}
	for _, child := range children {
		if re.MatchString(child) {
			matched = append(matched, child)
		}
	}
	return matched, true, nil
}
