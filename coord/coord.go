// Package coord defines the primitive operations a hierarchical coordination
// service exposes to treekeeper, and the faults those operations report.
//
// A Service manages a tree of nodes addressed by slash-separated absolute
// paths. Each node holds a byte payload and may have children. Implementations
// live in sub-packages:
//
//   - coord/zookeeper: Apache ZooKeeper via github.com/go-zookeeper/zk
//   - coord/oxia: Oxia, with the tree laid out on hierarchical keys
//   - coord/memtree: an in-memory tree for tests and local tooling
//
// Service methods never retry. Connection establishment and reconnection are
// the concern of the Service's own session, bounded by its RetryPolicy.
package coord

import (
	"context"
	"errors"
	"time"
)

// Faults reported by Service implementations. Implementations wrap these so
// callers can match them with errors.Is.
var (
	// ErrNoNode is returned when the addressed node does not exist.
	ErrNoNode = errors.New("coord: node does not exist")

	// ErrNodeExists is returned by Create when the node already exists.
	ErrNodeExists = errors.New("coord: node already exists")

	// ErrNoParent is returned by Create when the parent node does not exist.
	ErrNoParent = errors.New("coord: parent node does not exist")

	// ErrNotEmpty is returned by Delete when the node still has children.
	ErrNotEmpty = errors.New("coord: node has children")

	// ErrNoChildrenForEphemerals is returned when creating a child of an
	// ephemeral node.
	ErrNoChildrenForEphemerals = errors.New("coord: ephemeral nodes may not have children")

	// ErrDisconnected is returned when the session is not connected.
	ErrDisconnected = errors.New("coord: session disconnected")

	// ErrClosed is returned when operations are attempted on a closed service.
	ErrClosed = errors.New("coord: service closed")
)

// Kind is the persistence and naming mode of a node, fixed at creation.
type Kind int

const (
	// Persistent nodes survive the end of the creating session.
	Persistent Kind = iota
	// PersistentSequential nodes are persistent and get a server-assigned,
	// monotonically increasing suffix appended to their name.
	PersistentSequential
	// Ephemeral nodes are removed when the creating session ends.
	Ephemeral
	// EphemeralSequential nodes are ephemeral with a sequential suffix.
	EphemeralSequential
)

// IsSequential reports whether the server appends a sequence suffix.
func (k Kind) IsSequential() bool {
	return k == PersistentSequential || k == EphemeralSequential
}

// IsEphemeral reports whether the node is bound to its creating session.
func (k Kind) IsEphemeral() bool {
	return k == Ephemeral || k == EphemeralSequential
}

func (k Kind) String() string {
	switch k {
	case Persistent:
		return "persistent"
	case PersistentSequential:
		return "persistent_sequential"
	case Ephemeral:
		return "ephemeral"
	case EphemeralSequential:
		return "ephemeral_sequential"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name as printed by Kind.String back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "persistent":
		return Persistent, true
	case "persistent_sequential":
		return PersistentSequential, true
	case "ephemeral":
		return Ephemeral, true
	case "ephemeral_sequential":
		return EphemeralSequential, true
	default:
		return Persistent, false
	}
}

// Stat is the metadata of a node.
type Stat struct {
	// Version is incremented by every data write. A freshly created node
	// has version 0.
	Version int64
	// Ephemeral is true if the node is bound to a session.
	Ephemeral bool
}

// EventType describes what happened to a watched node.
type EventType int

const (
	// EventCreated is delivered when the watched node is created.
	EventCreated EventType = iota + 1
	// EventDeleted is delivered when the watched node is deleted.
	EventDeleted
	// EventDataChanged is delivered when the watched node's data is written.
	EventDataChanged
	// EventResync is delivered when the subscription may have missed changes
	// (for example after a reconnect) and consumers should re-read the node.
	EventResync
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	case EventDataChanged:
		return "data_changed"
	case EventResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Event is a change notification for a subscribed path.
type Event struct {
	Type EventType
	Path string
}

// Subscription delivers change events for a single path until closed.
// Events carry no payload; consumers re-read the node to observe its state.
type Subscription interface {
	// Events returns the channel on which events are delivered. The channel
	// is closed after Close or when the service shuts down.
	Events() <-chan Event

	// Close stops delivery and releases the underlying watch.
	Close() error
}

// Service is the set of primitives a coordination service offers.
//
// All paths are absolute, canonical paths relative to the service's
// namespace ("/" is the namespace root). All blocking operations accept a
// context for cancellation.
type Service interface {
	// Exists reports whether a node exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Create creates a node and returns its actual path, which differs from
	// path only for sequential kinds. Fails with ErrNodeExists or ErrNoParent.
	Create(ctx context.Context, path string, data []byte, kind Kind) (string, error)

	// Delete removes a node. Fails with ErrNoNode or ErrNotEmpty.
	Delete(ctx context.Context, path string) error

	// Get returns the node's data and stat. Fails with ErrNoNode.
	Get(ctx context.Context, path string) ([]byte, Stat, error)

	// Set overwrites the node's data unconditionally. Fails with ErrNoNode.
	Set(ctx context.Context, path string, data []byte) (Stat, error)

	// Children returns the names of the node's children in no particular
	// order. Fails with ErrNoNode.
	Children(ctx context.Context, path string) ([]string, error)

	// Subscribe starts watching path. The node need not exist.
	Subscribe(ctx context.Context, path string) (Subscription, error)

	// Connected reports whether the session is currently connected.
	Connected() bool

	// WaitConnected blocks until the session is connected or ctx is done.
	WaitConnected(ctx context.Context) error

	// Addresses returns the configured service addresses.
	Addresses() []string

	// Namespace returns the namespace all paths are relative to, or "" if
	// none is used.
	Namespace() string

	// Close ends the session. It is terminal.
	Close() error
}

// Default retry policy values.
const (
	DefaultBaseDelay  = time.Second
	DefaultMaxRetries = 10
)

// RetryPolicy bounds session establishment. Backends use it to schedule
// reconnect attempts with exponential backoff, and the connection guard
// waits at most MaxWait for a session before failing.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: DefaultBaseDelay, MaxRetries: DefaultMaxRetries}
}

// WithDefaults returns p with zero or negative fields replaced by defaults.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	return p
}

// MaxWait is the upper bound on waiting for a session: BaseDelay × MaxRetries.
func (p RetryPolicy) MaxWait() time.Duration {
	p = p.WithDefaults()
	return p.BaseDelay * time.Duration(p.MaxRetries)
}
