package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/coord/memtree"
	"github.com/treekeeper/treekeeper/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *memtree.Session) {
	t.Helper()
	s := memtree.New()
	opts = append([]Option{WithLogger(logging.Nop())}, opts...)
	c := New(s, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestCreateNodeCreatesAncestors(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	got, err := c.CreateNode(ctx, "/a/b/c", coord.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", got)
	assert.Equal(t, []string{"/", "/a", "/a/b", "/a/b/c"}, s.Tree().Paths())

	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		_, stat, err := s.Get(ctx, p)
		require.NoError(t, err)
		assert.False(t, stat.Ephemeral, p)
	}

	got, err = c.CreateNode(ctx, "/a/b/c", coord.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", got)
	assert.Equal(t, 4, s.Tree().Len())
}

func TestCreateNodeKeepsExistingData(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateNode(ctx, "/cfg", coord.Persistent, WithData([]byte("first")))
	require.NoError(t, err)
	_, err = c.CreateNode(ctx, "/cfg", coord.Persistent, WithData([]byte("second")))
	require.NoError(t, err)

	data, err := c.GetData(ctx, "/cfg")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestCreateNodeSequential(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.CreateNode(ctx, "/a/seq", coord.PersistentSequential)
	require.NoError(t, err)
	second, err := c.CreateNode(ctx, "/a/seq", coord.PersistentSequential)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "/a/seq"), first)
	assert.True(t, strings.HasPrefix(second, "/a/seq"), second)
}

func TestCreateNodeEphemeralOnlyLeaf(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateNode(ctx, "/members/m1", coord.Ephemeral)
	require.NoError(t, err)

	_, stat, err := s.Get(ctx, "/members")
	require.NoError(t, err)
	assert.False(t, stat.Ephemeral)
	_, stat, err = s.Get(ctx, "/members/m1")
	require.NoError(t, err)
	assert.True(t, stat.Ephemeral)

	s.Expire()
	ok, err := c.CheckExists(ctx, "/members/m1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.CheckExists(ctx, "/members")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateNodeUnderEphemeralIsRemoteError(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateNode(ctx, "/e", coord.Ephemeral)
	require.NoError(t, err)

	_, err = c.CreateNode(ctx, "/e/child", coord.Persistent)
	require.ErrorIs(t, err, ErrRemote)
	require.ErrorIs(t, err, coord.ErrNoChildrenForEphemerals)

	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "create", rerr.Op)
	assert.Equal(t, "/e/child", rerr.Path)
}

func TestCreateNodeRoot(t *testing.T) {
	c, s := newTestClient(t)

	got, err := c.CreateNode(context.Background(), "/", coord.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/", got)
	assert.Equal(t, 1, s.Tree().Len())
}

func TestConcurrentCreatorsShareAncestors(t *testing.T) {
	tr := memtree.NewTree()
	ctx := context.Background()

	var g errgroup.Group
	for i := range 8 {
		c := New(tr.NewSession(), WithLogger(logging.Nop()))
		t.Cleanup(func() { _ = c.Close() })
		g.Go(func() error {
			_, err := c.CreateNode(ctx, fmt.Sprintf("/race/a/b/leaf-%d", i), coord.Persistent)
			return err
		})
	}
	require.NoError(t, g.Wait())

	paths := tr.Paths()
	assert.Len(t, paths, 4+8)
	assert.Contains(t, paths, "/race/a/b")
}

func TestDeleteNodeRemovesSubtree(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	for _, p := range []string{"/d/x/1", "/d/x/2", "/d/y/z/deep", "/keep"} {
		_, err := c.CreateNode(ctx, p, coord.Persistent)
		require.NoError(t, err)
	}

	require.NoError(t, c.DeleteNode(ctx, "/d"))
	assert.Equal(t, []string{"/", "/keep"}, s.Tree().Paths())
}

func TestDeleteNodeMissingIsNoop(t *testing.T) {
	c, s := newTestClient(t)

	require.NoError(t, c.DeleteNode(context.Background(), "/nope/deeper"))
	assert.Equal(t, 1, s.Tree().Len())
}

func TestDeleteNodeRootKeepsRoot(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	_, err := c.CreateNode(ctx, "/a/b", coord.Persistent)
	require.NoError(t, err)

	require.NoError(t, c.DeleteNode(ctx, "/"))
	assert.Equal(t, []string{"/"}, s.Tree().Paths())
}

func TestGetSetData(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetData(ctx, "/missing")
	require.ErrorIs(t, err, ErrNodeNotFound)
	err = c.SetData(ctx, "/missing", []byte("x"))
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = c.CreateNode(ctx, "/n", coord.Persistent)
	require.NoError(t, err)

	payload := []byte{0x00, 0xff, 'h', 'i', 0x7f}
	require.NoError(t, c.SetData(ctx, "/n", payload))
	got, err := c.GetData(ctx, "/n")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestGetChildren(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	children, found, err := c.GetChildren(ctx, "/p")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, children)

	_, err = c.CreateNode(ctx, "/p", coord.Persistent)
	require.NoError(t, err)
	children, found, err = c.GetChildren(ctx, "/p")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotNil(t, children)
	assert.Empty(t, children)

	for _, name := range []string{"b", "a", "c/grandchild"} {
		_, err = c.CreateNode(ctx, "/p/"+name, coord.Persistent)
		require.NoError(t, err)
	}
	children, found, err = c.GetChildren(ctx, "/p")
	require.NoError(t, err)
	assert.True(t, found)
	sort.Strings(children)
	assert.Equal(t, []string{"a", "b", "c"}, children)
}

func TestFindChildren(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	matched, found, err := c.FindChildren(ctx, "/workers", "w.*")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, matched)

	for _, name := range []string{"w1", "w22", "xw3", "w4x"} {
		_, err = c.CreateNode(ctx, "/workers/"+name, coord.Persistent)
		require.NoError(t, err)
	}

	matched, found, err = c.FindChildren(ctx, "/workers", `w\d+`)
	require.NoError(t, err)
	assert.True(t, found)
	sort.Strings(matched)
	assert.Equal(t, []string{"w1", "w22"}, matched)

	matched, found, err = c.FindChildren(ctx, "/workers", "w1|w4")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"w1"}, matched)

	matched, found, err = c.FindChildren(ctx, "/workers", "none")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, matched)
}

func TestFindChildrenInvalidPattern(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, err := c.FindChildren(context.Background(), "/", "(")
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestOperationsRejectInvalidPaths(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	_, err := c.CheckExists(ctx, "relative")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = c.CreateNode(ctx, "/a/", coord.Persistent)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, c.DeleteNode(ctx, ""), ErrInvalidPath)
	_, err = c.GetData(ctx, "/a//b")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, c.SetData(ctx, "/a/../b", nil), ErrInvalidPath)
	_, _, err = c.GetChildren(ctx, "a")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = c.ListenNode(ctx, "x/", false)
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.Equal(t, 1, s.Tree().Len())
}

func TestClosedSessionIsConnectionError(t *testing.T) {
	s := memtree.New()
	c := New(s, WithLogger(logging.Nop()))
	require.NoError(t, s.Close())

	_, err := c.GetData(context.Background(), "/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, coord.ErrClosed)
	assert.NotErrorIs(t, err, ErrRemote)
}
