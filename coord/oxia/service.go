package oxia

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// DefaultNamespace is used when Config.Namespace is empty.
const DefaultNamespace = "default"

// Config configures the Oxia backend.
type Config struct {
	// ServiceAddress is the Oxia service endpoint (e.g., "localhost:6648").
	ServiceAddress string

	// Namespace is the Oxia namespace holding the tree.
	Namespace string

	// RequestTimeout bounds individual requests.
	// Default: the client's own default.
	RequestTimeout time.Duration

	// SessionTimeout bounds the session owning ephemeral nodes. When the
	// session expires, all its ephemeral nodes are deleted.
	// Default: the client's own default.
	SessionTimeout time.Duration

	// RetryPolicy bounds attempts to create the client: BaseDelay is the
	// first backoff interval and MaxRetries the number of retries.
	RetryPolicy coord.RetryPolicy

	Logger *logging.Logger
}

// Service implements coord.Service on Oxia.
type Service struct {
	client oxiaclient.SyncClient
	config Config
	logger *logging.Logger
	hub    *hub

	mu     sync.RWMutex
	closed bool
}

// Connect creates the Oxia client, retrying with exponential backoff per
// cfg.RetryPolicy, and opens the namespace-wide notification stream that
// feeds all subscriptions.
func Connect(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.ServiceAddress == "" {
		return nil, errors.New("oxia: service address is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	logger := logging.Or(cfg.Logger).With(map[string]any{
		"backend":   "oxia",
		"namespace": cfg.Namespace,
	})

	opts := []oxiaclient.ClientOption{
		oxiaclient.WithNamespace(cfg.Namespace),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, oxiaclient.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, oxiaclient.WithSessionTimeout(cfg.SessionTimeout))
	}

	var client oxiaclient.SyncClient
	create := func() error {
		c, err := oxiaclient.NewSyncClient(cfg.ServiceAddress, opts...)
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warnf("oxia client creation failed, retrying", map[string]any{
			"address": cfg.ServiceAddress,
			"retryIn": next.String(),
			"error":   err,
		})
	}
	if err := backoff.RetryNotify(create, newBackOff(ctx, cfg.RetryPolicy), notify); err != nil {
		return nil, fmt.Errorf("oxia: failed to create client: %w", err)
	}

	notifications, err := client.GetNotifications()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("oxia: failed to get notifications: %w", err)
	}

	s := &Service{
		client: client,
		config: cfg,
		logger: logger,
		hub:    newHub(notifications, logger),
	}
	logger.Infof("oxia client created", map[string]any{"address": cfg.ServiceAddress})
	return s, nil
}

// newBackOff builds the exponential policy used for client creation.
func newBackOff(ctx context.Context, policy coord.RetryPolicy) backoff.BackOff {
	policy = policy.WithDefaults()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.BaseDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(policy.MaxRetries)), ctx)
}

const (
	conflictInitialInterval = 5 * time.Millisecond
	conflictMaxInterval     = 500 * time.Millisecond
	conflictMaxRetries      = 20
)

// conflictBackOff spaces retries of read-modify-write cycles that lost a
// version race.
func conflictBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = conflictInitialInterval
	exp.MaxInterval = conflictMaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, conflictMaxRetries), ctx)
}

func (s *Service) check(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return coord.ErrClosed
	}
	return ctx.Err()
}

// get reads a key. found is false if the key does not exist.
func (s *Service) get(ctx context.Context, key string) (value []byte, version oxiaclient.Version, found bool, err error) {
	_, value, version, err = s.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return nil, oxiaclient.Version{}, false, nil
		}
		return nil, oxiaclient.Version{}, false, err
	}
	return value, version, true, nil
}

// Exists reports whether a node exists at path. The root always exists.
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if coord.IsRoot(path) {
		return true, nil
	}
	_, _, found, err := s.get(ctx, path)
	if err != nil {
		return false, fmt.Errorf("oxia: exists %s: %w", path, err)
	}
	return found, nil
}

// Create stores a node after checking that its parent exists and is not
// ephemeral. The parent check and the write are separate requests.
func (s *Service) Create(ctx context.Context, path string, data []byte, kind coord.Kind) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	if coord.IsRoot(path) {
		return "", fmt.Errorf("oxia: create %s: %w", path, coord.ErrNodeExists)
	}

	parent := coord.ParentPath(path)
	if !coord.IsRoot(parent) {
		_, version, found, err := s.get(ctx, parent)
		if err != nil {
			return "", fmt.Errorf("oxia: create %s: %w", path, err)
		}
		if !found {
			return "", fmt.Errorf("oxia: create %s: %w", path, coord.ErrNoParent)
		}
		if version.Ephemeral {
			return "", fmt.Errorf("oxia: create %s: %w", path, coord.ErrNoChildrenForEphemerals)
		}
	}

	actual := path
	if kind.IsSequential() {
		seq, err := s.nextSequence(ctx, parent)
		if err != nil {
			return "", fmt.Errorf("oxia: create %s: %w", path, err)
		}
		actual = sequentialName(path, seq)
	}

	opts := []oxiaclient.PutOption{oxiaclient.ExpectedRecordNotExists()}
	if kind.IsEphemeral() {
		opts = append(opts, oxiaclient.Ephemeral())
	}
	if _, _, err := s.client.Put(ctx, actual, data, opts...); err != nil {
		if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
			return "", fmt.Errorf("oxia: create %s: %w", actual, coord.ErrNodeExists)
		}
		return "", fmt.Errorf("oxia: create %s: %w", actual, err)
	}
	return actual, nil
}

// Delete removes a childless node.
func (s *Service) Delete(ctx context.Context, path string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if coord.IsRoot(path) {
		return fmt.Errorf("oxia: delete %s: %w", path, coord.ErrNotEmpty)
	}

	children, err := s.scanChildren(ctx, path, 1)
	if err != nil {
		return fmt.Errorf("oxia: delete %s: %w", path, err)
	}
	if len(children) > 0 {
		return fmt.Errorf("oxia: delete %s: %w", path, coord.ErrNotEmpty)
	}

	if err := s.client.Delete(ctx, path); err != nil {
		if errors.Is(err, oxiaclient.ErrKeyNotFound) {
			return fmt.Errorf("oxia: delete %s: %w", path, coord.ErrNoNode)
		}
		return fmt.Errorf("oxia: delete %s: %w", path, err)
	}
	s.dropSequence(ctx, path)
	return nil
}

// Get returns the node's payload and stat. The root reads as an empty node
// until data is set on it.
func (s *Service) Get(ctx context.Context, path string) ([]byte, coord.Stat, error) {
	if err := s.check(ctx); err != nil {
		return nil, coord.Stat{}, err
	}
	value, version, found, err := s.get(ctx, path)
	if err != nil {
		return nil, coord.Stat{}, fmt.Errorf("oxia: get %s: %w", path, err)
	}
	if !found {
		if coord.IsRoot(path) {
			return nil, coord.Stat{}, nil
		}
		return nil, coord.Stat{}, fmt.Errorf("oxia: get %s: %w", path, coord.ErrNoNode)
	}
	return value, toStat(version), nil
}

// Set overwrites the node's payload. The write is conditional on the version
// just read, and retried on conflict, so a concurrent delete is reported as
// ErrNoNode rather than resurrecting the node.
func (s *Service) Set(ctx context.Context, path string, data []byte) (coord.Stat, error) {
	if err := s.check(ctx); err != nil {
		return coord.Stat{}, err
	}

	var stat coord.Stat
	write := func() error {
		_, current, found, err := s.get(ctx, path)
		if err != nil {
			return backoff.Permanent(err)
		}

		opts := []oxiaclient.PutOption{}
		switch {
		case found:
			opts = append(opts, oxiaclient.ExpectedVersionId(current.VersionId))
			if current.Ephemeral {
				opts = append(opts, oxiaclient.Ephemeral())
			}
		case coord.IsRoot(path):
			opts = append(opts, oxiaclient.ExpectedRecordNotExists())
		default:
			return backoff.Permanent(coord.ErrNoNode)
		}

		_, version, err := s.client.Put(ctx, path, data, opts...)
		if err != nil {
			if errors.Is(err, oxiaclient.ErrUnexpectedVersionId) {
				return err
			}
			return backoff.Permanent(err)
		}
		stat = toStat(version)
		return nil
	}

	if err := backoff.Retry(write, conflictBackOff(ctx)); err != nil {
		return coord.Stat{}, fmt.Errorf("oxia: set %s: %w", path, err)
	}
	return stat, nil
}

// Children returns the names of the node's direct children.
func (s *Service) Children(ctx context.Context, path string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if !coord.IsRoot(path) {
		_, _, found, err := s.get(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("oxia: children %s: %w", path, err)
		}
		if !found {
			return nil, fmt.Errorf("oxia: children %s: %w", path, coord.ErrNoNode)
		}
	}
	children, err := s.scanChildren(ctx, path, 0)
	if err != nil {
		return nil, fmt.Errorf("oxia: children %s: %w", path, err)
	}
	return children, nil
}

// scanChildren lists direct children using Oxia's hierarchical key order:
// the direct children of "/a" are exactly the keys in ["/a/", "/a//").
// A positive limit stops the scan early.
func (s *Service) scanChildren(ctx context.Context, path string, limit int) ([]string, error) {
	start := path + coord.Separator
	if coord.IsRoot(path) {
		start = coord.Separator
	}
	end := start + coord.Separator

	results := s.client.RangeScan(ctx, start, end)
	children := []string{}
	for result := range results {
		if result.Err != nil {
			return nil, result.Err
		}
		name := strings.TrimPrefix(result.Key, start)
		if name == "" || strings.Contains(name, coord.Separator) {
			continue
		}
		children = append(children, name)
		if limit > 0 && len(children) >= limit {
			go drainRangeScan(results)
			break
		}
	}
	return children, nil
}

// Subscribe registers a watcher on path with the notification hub. The
// stream is already open, so every change after Subscribe returns is seen.
func (s *Service) Subscribe(ctx context.Context, path string) (coord.Subscription, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	sub, err := s.hub.subscribe(path)
	if err != nil {
		return nil, fmt.Errorf("oxia: subscribe %s: %w", path, err)
	}
	return sub, nil
}

// Connected reports whether the service is open. The Oxia client manages
// its connections internally and does not expose their state.
func (s *Service) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// WaitConnected returns immediately unless the service is closed.
func (s *Service) WaitConnected(ctx context.Context) error {
	if !s.Connected() {
		return coord.ErrClosed
	}
	return ctx.Err()
}

// Addresses returns the service address.
func (s *Service) Addresses() []string {
	return []string{s.config.ServiceAddress}
}

// Namespace returns the Oxia namespace.
func (s *Service) Namespace() string {
	return s.config.Namespace
}

// Close closes all subscriptions and the client. The server removes the
// session's ephemeral nodes.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	hubErr := s.hub.close()
	clientErr := s.client.Close()
	s.logger.Info("oxia client closed")
	return errors.Join(hubErr, clientErr)
}

// toStat reports the record's own modification count as the node version.
// VersionId is namespace-wide and only serves compare-and-set.
func toStat(v oxiaclient.Version) coord.Stat {
	return coord.Stat{Version: v.ModificationsCount, Ephemeral: v.Ephemeral}
}

func drainRangeScan(results <-chan oxiaclient.GetResult) {
	for range results {
	}
}

var _ coord.Service = (*Service)(nil)
