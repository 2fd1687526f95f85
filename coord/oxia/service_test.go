package oxia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

// Integration tests that need an Oxia server are in integration_test.go and
// run with: go test -tags=integration ./coord/oxia/

func TestConnectRequiresAddress(t *testing.T) {
	_, err := Connect(context.Background(), Config{Namespace: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service address is required")
}

func TestSequentialName(t *testing.T) {
	assert.Equal(t, "/q/item-0000000000", sequentialName("/q/item-", 0))
	assert.Equal(t, "/q/item-0000000042", sequentialName("/q/item-", 42))
	assert.Less(t, sequentialName("/q/n", 9), sequentialName("/q/n", 10))
}

func TestSequenceKeyOutsideTree(t *testing.T) {
	key := sequenceKey("/a")
	assert.False(t, strings.HasPrefix(key, coord.Separator))
	assert.NotEqual(t, sequenceKey("/a"), sequenceKey("/b"))
}

func TestToStatUsesModificationCount(t *testing.T) {
	st := toStat(oxiaclient.Version{VersionId: 9041, ModificationsCount: 0})
	assert.Equal(t, int64(0), st.Version)
	assert.False(t, st.Ephemeral)

	st = toStat(oxiaclient.Version{VersionId: 9057, ModificationsCount: 3, Ephemeral: true})
	assert.Equal(t, int64(3), st.Version)
	assert.True(t, st.Ephemeral)
}

// deleteRecorder stubs the one client call dropSequence makes.
type deleteRecorder struct {
	oxiaclient.SyncClient
	err  error
	keys []string
}

func (d *deleteRecorder) Delete(_ context.Context, key string, _ ...oxiaclient.DeleteOption) error {
	d.keys = append(d.keys, key)
	return d.err
}

func TestDropSequence(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		logged bool
	}{
		{name: "deleted", err: nil},
		{name: "no counter", err: oxiaclient.ErrKeyNotFound},
		{name: "wrapped missing counter", err: fmt.Errorf("rpc: %w", oxiaclient.ErrKeyNotFound)},
		{name: "backend failure", err: errors.New("shard unavailable"), logged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			client := &deleteRecorder{err: tt.err}
			s := &Service{
				client: client,
				logger: logging.New(logging.Config{Level: logging.LevelDebug, Output: &buf}),
			}

			s.dropSequence(context.Background(), "/q")

			assert.Equal(t, []string{sequenceKey("/q")}, client.keys)
			if tt.logged {
				assert.Contains(t, buf.String(), "failed to delete sequence counter")
				assert.Contains(t, buf.String(), "shard unavailable")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		in     oxiaclient.NotificationType
		want   coord.EventType
		ranged bool
	}{
		{oxiaclient.KeyCreated, coord.EventCreated, false},
		{oxiaclient.KeyModified, coord.EventDataChanged, false},
		{oxiaclient.KeyDeleted, coord.EventDeleted, false},
		{oxiaclient.KeyRangeRangeDeleted, coord.EventResync, true},
	}
	for _, tt := range tests {
		typ, ranged := eventType(tt.in)
		assert.Equal(t, tt.want, typ)
		assert.Equal(t, tt.ranged, ranged)
	}
}

// mockNotifications implements oxiaclient.Notifications for testing.
type mockNotifications struct {
	ch     chan *oxiaclient.Notification
	closed bool
}

func newMockNotifications() *mockNotifications {
	return &mockNotifications{ch: make(chan *oxiaclient.Notification, 10)}
}

func (m *mockNotifications) Ch() <-chan *oxiaclient.Notification {
	return m.ch
}

func (m *mockNotifications) Close() error {
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}

func nextEvent(t *testing.T, sub coord.Subscription) coord.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return coord.Event{}
	}
}

func TestHubRoutesByKey(t *testing.T) {
	n := newMockNotifications()
	h := newHub(n, logging.Nop())
	defer h.close()

	a, err := h.subscribe("/a")
	require.NoError(t, err)
	b, err := h.subscribe("/b")
	require.NoError(t, err)
	assert.Equal(t, 1, h.watchers("/a"))

	n.ch <- &oxiaclient.Notification{Type: oxiaclient.KeyCreated, Key: "/a", VersionId: 0}
	n.ch <- &oxiaclient.Notification{Type: oxiaclient.KeyModified, Key: "/b", VersionId: 1}
	n.ch <- &oxiaclient.Notification{Type: oxiaclient.KeyDeleted, Key: "/a"}

	assert.Equal(t, coord.Event{Type: coord.EventCreated, Path: "/a"}, nextEvent(t, a))
	assert.Equal(t, coord.Event{Type: coord.EventDeleted, Path: "/a"}, nextEvent(t, a))
	assert.Equal(t, coord.Event{Type: coord.EventDataChanged, Path: "/b"}, nextEvent(t, b))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 0, h.watchers("/a"))
	require.NoError(t, b.Close())
}

func TestHubRangeDeleteResyncsEveryone(t *testing.T) {
	n := newMockNotifications()
	h := newHub(n, logging.Nop())
	defer h.close()

	a, err := h.subscribe("/a")
	require.NoError(t, err)
	defer a.Close()
	b, err := h.subscribe("/x/y")
	require.NoError(t, err)
	defer b.Close()

	n.ch <- &oxiaclient.Notification{Type: oxiaclient.KeyRangeRangeDeleted, Key: "/"}

	assert.Equal(t, coord.EventResync, nextEvent(t, a).Type)
	assert.Equal(t, coord.Event{Type: coord.EventResync, Path: "/x/y"}, nextEvent(t, b))
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	n := newMockNotifications()
	h := newHub(n, logging.Nop())

	sub, err := h.subscribe("/a")
	require.NoError(t, err)

	require.NoError(t, h.close())
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	_, err = h.subscribe("/a")
	assert.ErrorIs(t, err, coord.ErrClosed)
}
