package memtree

import (
	"sync"

	"github.com/treekeeper/treekeeper/coord"
)

// subscription is a path watcher registered on a Tree. Tree mutations push
// into its queue and never block on the consumer.
type subscription struct {
	*coord.EventQueue
	path string
	tree *Tree

	closeOnce sync.Once
}

func newSubscription(t *Tree, path string) *subscription {
	return &subscription{
		EventQueue: coord.NewEventQueue(),
		path:       path,
		tree:       t,
	}
}

func (s *subscription) enqueue(ev coord.Event) {
	s.Push(ev)
}

// Close stops delivery. Pending events are discarded.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.tree.unwatch(s)
		s.EventQueue.Close()
	})
	return nil
}
