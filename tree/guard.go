package tree

import (
	"context"
	"time"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// Guard blocks callers until the service session is connected, for at most
// a bounded wait. It only waits for the session; it never retries a remote
// call.
type Guard struct {
	svc     coord.Service
	maxWait time.Duration
	logger  *logging.Logger
}

// NewGuard creates a guard waiting at most policy.MaxWait() per call.
func NewGuard(svc coord.Service, policy coord.RetryPolicy, logger *logging.Logger) *Guard {
	return &Guard{
		svc:     svc,
		maxWait: policy.MaxWait(),
		logger:  logger,
	}
}

// MaxWait returns the bound on a single wait.
func (g *Guard) MaxWait() time.Duration {
	return g.maxWait
}

// EnsureConnected returns nil once the session is connected. If the bound
// elapses, or ctx is cancelled first, it returns a *ConnectionError naming
// the configured addresses. A shorter deadline on ctx shortens the wait.
func (g *Guard) EnsureConnected(ctx context.Context) error {
	if g.svc.Connected() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	start := time.Now()
	err := g.svc.WaitConnected(waitCtx)
	if err == nil {
		return nil
	}

	logging.ContextLogger(ctx, g.logger).Warnf("session not connected", map[string]any{
		"addresses": g.svc.Addresses(),
		"waited":    time.Since(start).String(),
		"error":     err,
	})
	return &ConnectionError{Addresses: g.svc.Addresses(), Cause: err}
}
