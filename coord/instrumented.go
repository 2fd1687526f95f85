package coord

import (
	"context"
	"errors"
	"time"
)

// MetricsRecorder is the interface for recording coordination service
// operation metrics. This keeps the coord package decoupled from the
// metrics package.
type MetricsRecorder interface {
	RecordExists(durationSeconds float64, success bool)
	RecordCreate(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordGet(durationSeconds float64, success bool)
	RecordSet(durationSeconds float64, success bool)
	RecordChildren(durationSeconds float64, success bool)
	RecordSubscribe(durationSeconds float64, success bool)
}

// InstrumentedService wraps a Service and records metrics for each operation.
type InstrumentedService struct {
	svc     Service
	metrics MetricsRecorder
}

// NewInstrumentedService creates an instrumented wrapper around a Service.
// If metrics is nil, no metrics are recorded and operations pass through directly.
func NewInstrumentedService(svc Service, metrics MetricsRecorder) *InstrumentedService {
	return &InstrumentedService{
		svc:     svc,
		metrics: metrics,
	}
}

// Unwrap returns the decorated service.
func (s *InstrumentedService) Unwrap() Service {
	return s.svc
}

// succeeded treats the expected negative outcomes (missing node, existing
// node, non-empty node) as successful round trips; only transport and
// session faults count as failures.
func succeeded(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNoNode) ||
		errors.Is(err, ErrNodeExists) ||
		errors.Is(err, ErrNotEmpty) ||
		errors.Is(err, ErrNoParent)
}

// Exists reports whether a node exists at path.
func (s *InstrumentedService) Exists(ctx context.Context, path string) (bool, error) {
	start := time.Now()
	ok, err := s.svc.Exists(ctx, path)
	if s.metrics != nil {
		s.metrics.RecordExists(time.Since(start).Seconds(), succeeded(err))
	}
	return ok, err
}

// Create creates a node.
func (s *InstrumentedService) Create(ctx context.Context, path string, data []byte, kind Kind) (string, error) {
	start := time.Now()
	actual, err := s.svc.Create(ctx, path, data, kind)
	if s.metrics != nil {
		s.metrics.RecordCreate(time.Since(start).Seconds(), succeeded(err))
	}
	return actual, err
}

// Delete removes a node.
func (s *InstrumentedService) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := s.svc.Delete(ctx, path)
	if s.metrics != nil {
		s.metrics.RecordDelete(time.Since(start).Seconds(), succeeded(err))
	}
	return err
}

// Get returns a node's data and stat.
func (s *InstrumentedService) Get(ctx context.Context, path string) ([]byte, Stat, error) {
	start := time.Now()
	data, stat, err := s.svc.Get(ctx, path)
	if s.metrics != nil {
		s.metrics.RecordGet(time.Since(start).Seconds(), succeeded(err))
	}
	return data, stat, err
}

// Set overwrites a node's data.
func (s *InstrumentedService) Set(ctx context.Context, path string, data []byte) (Stat, error) {
	start := time.Now()
	stat, err := s.svc.Set(ctx, path, data)
	if s.metrics != nil {
		s.metrics.RecordSet(time.Since(start).Seconds(), succeeded(err))
	}
	return stat, err
}

// Children lists a node's children.
func (s *InstrumentedService) Children(ctx context.Context, path string) ([]string, error) {
	start := time.Now()
	children, err := s.svc.Children(ctx, path)
	if s.metrics != nil {
		s.metrics.RecordChildren(time.Since(start).Seconds(), succeeded(err))
	}
	return children, err
}

// Subscribe starts watching a path. Only the setup is timed; the
// subscription itself is long-lived.
func (s *InstrumentedService) Subscribe(ctx context.Context, path string) (Subscription, error) {
	start := time.Now()
	sub, err := s.svc.Subscribe(ctx, path)
	if s.metrics != nil {
		s.metrics.RecordSubscribe(time.Since(start).Seconds(), err == nil)
	}
	return sub, err
}

// Connected reports whether the session is connected.
func (s *InstrumentedService) Connected() bool {
	return s.svc.Connected()
}

// WaitConnected blocks until the session is connected or ctx is done.
func (s *InstrumentedService) WaitConnected(ctx context.Context) error {
	return s.svc.WaitConnected(ctx)
}

// Addresses returns the configured service addresses.
func (s *InstrumentedService) Addresses() []string {
	return s.svc.Addresses()
}

// Namespace returns the service namespace.
func (s *InstrumentedService) Namespace() string {
	return s.svc.Namespace()
}

// Close ends the session.
func (s *InstrumentedService) Close() error {
	return s.svc.Close()
}

// Ensure InstrumentedService implements Service.
var _ Service = (*InstrumentedService)(nil)
