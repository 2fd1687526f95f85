// Package coordtest holds a behavioural suite every coord.Service
// implementation is expected to pass.
package coordtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeeper/treekeeper/coord"
)

// Factory opens a new session against one shared backend. Sessions opened
// by the same factory must observe each other's writes.
type Factory func(t *testing.T) coord.Service

const eventTimeout = 10 * time.Second

// Run executes the suite. Every case works below a fresh random base path
// that is removed afterwards.
func Run(t *testing.T, open Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, open Factory, base string)
	}{
		{"CreateAndExists", testCreateAndExists},
		{"CreateFaults", testCreateFaults},
		{"Sequential", testSequential},
		{"GetSet", testGetSet},
		{"Children", testChildren},
		{"Delete", testDelete},
		{"EphemeralRemovedOnClose", testEphemeralRemovedOnClose},
		{"Subscribe", testSubscribe},
		{"Closed", testClosed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := open(t)
			ctx := context.Background()
			require.NoError(t, svc.WaitConnected(withTimeout(t)))

			base := "/coordtest-" + uuid.NewString()
			_, err := svc.Create(ctx, base, nil, coord.Persistent)
			require.NoError(t, err)
			t.Cleanup(func() {
				removeAll(context.Background(), svc, base)
				_ = svc.Close()
			})

			c.fn(t, open, base)
		})
	}
}

func withTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	t.Cleanup(cancel)
	return ctx
}

func removeAll(ctx context.Context, svc coord.Service, path string) {
	children, err := svc.Children(ctx, path)
	if err != nil {
		return
	}
	for _, c := range children {
		removeAll(ctx, svc, coord.ChildPath(path, c))
	}
	_ = svc.Delete(ctx, path)
}

func testCreateAndExists(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	p := base + "/node"
	ok, err := svc.Exists(ctx, p)
	require.NoError(t, err)
	assert.False(t, ok)

	actual, err := svc.Create(ctx, p, []byte("x"), coord.Persistent)
	require.NoError(t, err)
	assert.Equal(t, p, actual)

	ok, err = svc.Exists(ctx, p)
	require.NoError(t, err)
	assert.True(t, ok)

	root, err := svc.Exists(ctx, coord.Separator)
	require.NoError(t, err)
	assert.True(t, root)
}

func testCreateFaults(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	_, err := svc.Create(ctx, base+"/missing/child", nil, coord.Persistent)
	assert.ErrorIs(t, err, coord.ErrNoParent)

	_, err = svc.Create(ctx, base+"/dup", nil, coord.Persistent)
	require.NoError(t, err)
	_, err = svc.Create(ctx, base+"/dup", nil, coord.Persistent)
	assert.ErrorIs(t, err, coord.ErrNodeExists)
}

func testSequential(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	prefix := base + "/item-"
	first, err := svc.Create(ctx, prefix, nil, coord.PersistentSequential)
	require.NoError(t, err)
	second, err := svc.Create(ctx, prefix, nil, coord.PersistentSequential)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, prefix), first)
	assert.True(t, strings.HasPrefix(second, prefix), second)
	assert.Less(t, first, second)

	children, err := svc.Children(ctx, base)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func testGetSet(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	p := base + "/data"
	_, _, err := svc.Get(ctx, p)
	assert.ErrorIs(t, err, coord.ErrNoNode)
	_, err = svc.Set(ctx, p, []byte("x"))
	assert.ErrorIs(t, err, coord.ErrNoNode)

	_, err = svc.Create(ctx, p, []byte("v0"), coord.Persistent)
	require.NoError(t, err)
	data, before, err := svc.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("v0"), data)
	assert.Equal(t, int64(0), before.Version, "fresh node version")

	after, err := svc.Set(ctx, p, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Version)

	again, err := svc.Set(ctx, p, []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version, "every write counts, even an identical payload")

	data, stat, err := svc.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
	assert.Equal(t, again.Version, stat.Version)
	assert.False(t, stat.Ephemeral)
}

func testChildren(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	_, err := svc.Children(ctx, base+"/absent")
	assert.ErrorIs(t, err, coord.ErrNoNode)

	for _, p := range []string{"/b", "/a", "/a/deep", "/c"} {
		_, err := svc.Create(ctx, base+p, nil, coord.Persistent)
		require.NoError(t, err)
	}
	children, err := svc.Children(ctx, base)
	require.NoError(t, err)
	sort.Strings(children)
	assert.Equal(t, []string{"a", "b", "c"}, children)

	children, err = svc.Children(ctx, base+"/c")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func testDelete(t *testing.T, open Factory, base string) {
	svc := open(t)
	defer svc.Close()
	ctx := withTimeout(t)

	assert.ErrorIs(t, svc.Delete(ctx, base+"/absent"), coord.ErrNoNode)

	_, err := svc.Create(ctx, base+"/p", nil, coord.Persistent)
	require.NoError(t, err)
	_, err = svc.Create(ctx, base+"/p/c", nil, coord.Persistent)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, base+"/p"), coord.ErrNotEmpty)
	require.NoError(t, svc.Delete(ctx, base+"/p/c"))
	require.NoError(t, svc.Delete(ctx, base+"/p"))

	ok, err := svc.Exists(ctx, base+"/p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testEphemeralRemovedOnClose(t *testing.T, open Factory, base string) {
	owner := open(t)
	observer := open(t)
	defer observer.Close()
	ctx := withTimeout(t)
	require.NoError(t, owner.WaitConnected(ctx))

	p := base + "/member"
	_, err := owner.Create(ctx, p, []byte("me"), coord.Ephemeral)
	require.NoError(t, err)

	_, stat, err := observer.Get(ctx, p)
	require.NoError(t, err)
	assert.True(t, stat.Ephemeral)

	require.NoError(t, owner.Close())
	require.Eventually(t, func() bool {
		ok, err := observer.Exists(ctx, p)
		return err == nil && !ok
	}, eventTimeout, 20*time.Millisecond)
}

func testSubscribe(t *testing.T, open Factory, base string) {
	watcher := open(t)
	writer := open(t)
	defer watcher.Close()
	defer writer.Close()
	ctx := withTimeout(t)
	require.NoError(t, writer.WaitConnected(ctx))

	p := base + "/watched"
	sub, err := watcher.Subscribe(ctx, p)
	require.NoError(t, err)
	defer sub.Close()

	_, err = writer.Create(ctx, p, nil, coord.Persistent)
	require.NoError(t, err)
	expectEvent(t, sub, coord.EventCreated, p)

	_, err = writer.Set(ctx, p, []byte("x"))
	require.NoError(t, err)
	expectEvent(t, sub, coord.EventDataChanged, p)

	require.NoError(t, writer.Delete(ctx, p))
	expectEvent(t, sub, coord.EventDeleted, p)

	require.NoError(t, sub.Close())
}

// expectEvent waits for an event of type want, skipping resync events.
func expectEvent(t *testing.T, sub coord.Subscription, want coord.EventType, path string) {
	t.Helper()
	timer := time.NewTimer(eventTimeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed while waiting for %s", want)
			if ev.Type == coord.EventResync {
				continue
			}
			assert.Equal(t, want, ev.Type)
			assert.Equal(t, path, ev.Path)
			return
		case <-timer.C:
			t.Fatalf("no %s event for %s", want, path)
		}
	}
}

func testClosed(t *testing.T, open Factory, base string) {
	svc := open(t)
	ctx := withTimeout(t)
	require.NoError(t, svc.WaitConnected(ctx))
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	assert.False(t, svc.Connected())
	_, err := svc.Exists(ctx, base)
	assert.True(t, errors.Is(err, coord.ErrClosed) || errors.Is(err, coord.ErrDisconnected), "got %v", err)
	assert.Error(t, svc.WaitConnected(ctx))
}
