package zookeeper

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treekeeper/treekeeper/coord"
)

func TestConnectRequiresServers(t *testing.T) {
	_, err := Connect(Config{})
	require.Error(t, err)
}

func TestKindFlags(t *testing.T) {
	tests := []struct {
		kind coord.Kind
		want int32
	}{
		{coord.Persistent, 0},
		{coord.PersistentSequential, zk.FlagSequence},
		{coord.Ephemeral, zk.FlagEphemeral},
		{coord.EphemeralSequential, zk.FlagEphemeral | zk.FlagSequence},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, kindFlags(tt.kind))
		})
	}
}

func TestNamespacePaths(t *testing.T) {
	s := &Service{prefix: namespacePrefix(normalizeNamespace("/app/prod/"))}
	assert.Equal(t, "/app/prod", s.prefix)

	assert.Equal(t, "/app/prod", s.full("/"))
	assert.Equal(t, "/app/prod/a/b", s.full("/a/b"))
	assert.Equal(t, "/", s.relative("/app/prod"))
	assert.Equal(t, "/q/item-0000000003", s.relative("/app/prod/q/item-0000000003"))

	bare := &Service{}
	assert.Equal(t, "/a", bare.full("/a"))
	assert.Equal(t, "/a", bare.relative("/a"))
	assert.Equal(t, "", namespacePrefix(normalizeNamespace("//")))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{zk.ErrNoNode, coord.ErrNoNode},
		{zk.ErrNodeExists, coord.ErrNodeExists},
		{zk.ErrNotEmpty, coord.ErrNotEmpty},
		{zk.ErrNoChildrenForEphemerals, coord.ErrNoChildrenForEphemerals},
		{zk.ErrClosing, coord.ErrClosed},
		{zk.ErrConnectionClosed, coord.ErrDisconnected},
		{zk.ErrSessionExpired, coord.ErrDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.in.Error(), func(t *testing.T) {
			err := mapError("get", "/a", tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "zookeeper: get /a")
		})
	}

	other := errors.New("marshal failure")
	err := mapError("set", "/a", fmt.Errorf("wrapped: %w", other))
	assert.ErrorIs(t, err, other)
}

func TestEventType(t *testing.T) {
	typ, ok := eventType(zk.EventNodeCreated)
	assert.True(t, ok)
	assert.Equal(t, coord.EventCreated, typ)

	typ, ok = eventType(zk.EventNodeDataChanged)
	assert.True(t, ok)
	assert.Equal(t, coord.EventDataChanged, typ)

	_, ok = eventType(zk.EventNodeChildrenChanged)
	assert.False(t, ok)
}

func TestToStat(t *testing.T) {
	assert.Equal(t, coord.Stat{}, toStat(nil))
	assert.Equal(t, coord.Stat{Version: 3, Ephemeral: true}, toStat(&zk.Stat{Version: 3, EphemeralOwner: 42}))
}

func TestChangeBetweenObservations(t *testing.T) {
	absent := nodeState{}
	v0 := observe(true, &zk.Stat{Czxid: 10, Version: 0})
	v1 := observe(true, &zk.Stat{Czxid: 10, Version: 1})
	recreated := observe(true, &zk.Stat{Czxid: 20, Version: 0})

	assert.Equal(t, coord.EventCreated, change(absent, v0))
	assert.Equal(t, coord.EventDeleted, change(v0, absent))
	assert.Equal(t, coord.EventDataChanged, change(v0, v1))
	assert.Equal(t, coord.EventCreated, change(v1, recreated))
	assert.Equal(t, coord.EventType(0), change(v1, v1))
	assert.Equal(t, absent, observe(false, &zk.Stat{Czxid: 5}))
}

func TestSubscriptionEmitNeverBlocks(t *testing.T) {
	sub := newSubscription(&Service{done: make(chan struct{})}, "/n")

	// Nothing consumes while the watch keeps firing.
	for i := 0; i < 100; i++ {
		require.True(t, sub.emit(coord.EventDataChanged))
	}
	require.True(t, sub.emit(coord.EventDeleted))

	for i := 0; i < 100; i++ {
		ev := <-sub.Events()
		assert.Equal(t, coord.Event{Type: coord.EventDataChanged, Path: "/n"}, ev)
	}
	assert.Equal(t, coord.EventDeleted, (<-sub.Events()).Type)

	require.NoError(t, sub.Close())
	assert.False(t, sub.emit(coord.EventDataChanged))
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

