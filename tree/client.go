package tree

import (
	"errors"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	retry        coord.RetryPolicy
	logger       *logging.Logger
	coordMetrics coord.MetricsRecorder
	watchMetrics WatchMetricsRecorder
}

// WithRetryPolicy sets the policy bounding the connection guard's wait.
func WithRetryPolicy(p coord.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithLogger sets the client's logger. The global logger is used otherwise.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCoordMetrics records every service call through an instrumented
// decorator.
func WithCoordMetrics(m coord.MetricsRecorder) Option {
	return func(o *options) { o.coordMetrics = m }
}

// WithWatchMetrics records registrations and listener deliveries.
func WithWatchMetrics(m WatchMetricsRecorder) Option {
	return func(o *options) { o.watchMetrics = m }
}

// Client is the entry point of the package. It owns a coord.Service and every
// registration made through it.
type Client struct {
	*Manager
	*Bridge

	svc    coord.Service
	guard  *Guard
	logger *logging.Logger
}

// New creates a Client over svc. The client takes ownership of svc and
// closes it in Close.
func New(svc coord.Service, opts ...Option) *Client {
	o := options{retry: coord.DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.coordMetrics != nil {
		svc = coord.NewInstrumentedService(svc, o.coordMetrics)
	}

	guard := NewGuard(svc, o.retry, o.logger)
	return &Client{
		Manager: NewManager(svc, guard, o.logger),
		Bridge:  NewBridge(svc, guard, o.logger, o.watchMetrics),
		svc:     svc,
		guard:   guard,
		logger:  o.logger,
	}
}

// Guard returns the client's connection guard.
func (c *Client) Guard() *Guard {
	return c.guard
}

// Service returns the underlying service, instrumented if metrics were
// configured.
func (c *Client) Service() coord.Service {
	return c.svc
}

// Addresses returns the configured server addresses.
func (c *Client) Addresses() []string {
	return c.svc.Addresses()
}

// Namespace returns the namespace all paths are relative to.
func (c *Client) Namespace() string {
	return c.svc.Namespace()
}

// Close detaches every registration, then closes the session.
func (c *Client) Close() error {
	werr := c.CloseAll()
	serr := c.svc.Close()
	if err := errors.Join(werr, serr); err != nil {
		logging.Or(c.logger).Warnf("client closed with errors", map[string]any{"error": err})
		return err
	}
	return nil
}
