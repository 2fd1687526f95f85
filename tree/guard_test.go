package tree

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeeper/treekeeper/coord"
)

var fastRetry = coord.RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxRetries: 5}

func TestGuardTimesOutWithAddresses(t *testing.T) {
	c, s := newTestClient(t, WithRetryPolicy(fastRetry))
	assert.Equal(t, 50*time.Millisecond, c.Guard().MaxWait())

	s.SetConnected(false)
	start := time.Now()
	_, err := c.CheckExists(context.Background(), "/a")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrConnection)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, s.Addresses(), cerr.Addresses)
	assert.Contains(t, err.Error(), s.Addresses()[0])
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestGuardWaitsForReconnect(t *testing.T) {
	c, s := newTestClient(t)
	s.SetConnected(false)

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.SetConnected(true)
	}()

	ok, err := c.CheckExists(context.Background(), "/")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardHonoursCallerCancellation(t *testing.T) {
	c, s := newTestClient(t)
	s.SetConnected(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.SetData(ctx, "/a", nil)
	require.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuardDefaultPolicy(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, 10*time.Second, c.Guard().MaxWait())
}
