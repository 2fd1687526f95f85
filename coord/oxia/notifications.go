package oxia

import (
	"sync"
	"time"

	oxiaclient "github.com/oxia-db/oxia/oxia"

	"github.com/treekeeper/treekeeper/coord"
	"github.com/treekeeper/treekeeper/internal/logging"
)

const hubCloseTimeout = 5 * time.Second

// hub reads the namespace-wide notification stream and routes each change
// to the subscriptions watching its key.
type hub struct {
	notifications oxiaclient.Notifications
	logger        *logging.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
	done   chan struct{}
}

func newHub(n oxiaclient.Notifications, logger *logging.Logger) *hub {
	h := &hub{
		notifications: n,
		logger:        logger,
		subs:          make(map[string]map[*subscription]struct{}),
		done:          make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *hub) run() {
	defer close(h.done)
	for n := range h.notifications.Ch() {
		h.dispatch(n)
	}
	h.closeAll()
}

func (h *hub) dispatch(n *oxiaclient.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	typ, ranged := eventType(n.Type)
	if ranged {
		// Range deletions carry no per-key detail; every watcher re-reads.
		for path, subs := range h.subs {
			for s := range subs {
				s.Push(coord.Event{Type: coord.EventResync, Path: path})
			}
		}
		return
	}
	for s := range h.subs[n.Key] {
		s.Push(coord.Event{Type: typ, Path: n.Key})
	}
}

// eventType maps a notification type. ranged is true for range deletions.
func eventType(t oxiaclient.NotificationType) (typ coord.EventType, ranged bool) {
	switch t {
	case oxiaclient.KeyCreated:
		return coord.EventCreated, false
	case oxiaclient.KeyModified:
		return coord.EventDataChanged, false
	case oxiaclient.KeyDeleted:
		return coord.EventDeleted, false
	default:
		return coord.EventResync, true
	}
}

func (h *hub) subscribe(path string) (*subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, coord.ErrClosed
	}
	s := &subscription{EventQueue: coord.NewEventQueue(), hub: h, path: path}
	if h.subs[path] == nil {
		h.subs[path] = make(map[*subscription]struct{})
	}
	h.subs[path][s] = struct{}{}
	return s, nil
}

func (h *hub) remove(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subs[s.path]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subs, s.path)
		}
	}
}

// watchers returns the number of subscriptions on path.
func (h *hub) watchers(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[path])
}

func (h *hub) closeAll() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]map[*subscription]struct{})
	h.mu.Unlock()

	for _, set := range subs {
		for s := range set {
			s.EventQueue.Close()
		}
	}
}

// close stops the notification stream and closes every subscription. It
// waits a bounded time for the dispatcher to observe the end of the stream.
func (h *hub) close() error {
	err := h.notifications.Close()
	h.closeAll()
	select {
	case <-h.done:
	case <-time.After(hubCloseTimeout):
		h.logger.Warn("notification dispatcher did not stop")
	}
	return err
}

// subscription is one watcher registered with the hub.
type subscription struct {
	*coord.EventQueue
	hub  *hub
	path string
	once sync.Once
}

// Close detaches the subscription from the hub and stops delivery.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		s.EventQueue.Close()
	})
	return nil
}
