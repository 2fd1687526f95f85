package zookeeper

import (
	"errors"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"github.com/treekeeper/treekeeper/coord"
)

// subscription re-arms a one-shot exists/data watch after each event. When
// a watch is lost (session expiry, connection failure) it waits for the
// session, re-arms and emits EventResync, since changes may have been missed.
// Events are queued without bound, so a slow consumer never stalls re-arming.
type subscription struct {
	*coord.EventQueue
	svc  *Service
	path string
	done chan struct{}
	once sync.Once
}

func newSubscription(svc *Service, path string) *subscription {
	return &subscription{
		EventQueue: coord.NewEventQueue(),
		svc:        svc,
		path:       path,
		done:       make(chan struct{}),
	}
}

// nodeState is what a re-armed watch observed about the node.
type nodeState struct {
	exists  bool
	czxid   int64
	version int32
}

func observe(exists bool, stat *zk.Stat) nodeState {
	if !exists || stat == nil {
		return nodeState{}
	}
	return nodeState{exists: true, czxid: stat.Czxid, version: stat.Version}
}

// change derives the event separating two observations, or 0 if none.
func change(before, after nodeState) coord.EventType {
	switch {
	case !before.exists && after.exists:
		return coord.EventCreated
	case before.exists && !after.exists:
		return coord.EventDeleted
	case before.czxid != after.czxid:
		return coord.EventCreated
	case before.version != after.version:
		return coord.EventDataChanged
	default:
		return 0
	}
}

// arm sets the first watch. It runs on the caller's goroutine so changes
// made after Subscribe returns are always observed.
func (sub *subscription) arm() (nodeState, <-chan zk.Event, error) {
	exists, stat, ch, err := sub.svc.conn.ExistsW(sub.svc.full(sub.path))
	if err != nil {
		return nodeState{}, nil, mapError("watch", sub.path, err)
	}
	return observe(exists, stat), ch, nil
}

// run re-arms the watch before emitting the event that fired it, so a
// consumer reacting to an event never races an unarmed watch. The emitted
// type is derived from the state seen on re-arm; changes that happened
// between the firing and the re-arm are folded into one event.
func (sub *subscription) run(known nodeState, ch <-chan zk.Event) {
	defer sub.svc.wg.Done()
	defer sub.EventQueue.Close()

	full := sub.svc.full(sub.path)
	var (
		pending coord.EventType
		resync  bool
	)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.svc.done:
			return
		case ev, ok := <-ch:
			switch {
			case !ok || ev.Type == zk.EventNotWatching:
				resync = true
			default:
				if typ, mapped := eventType(ev.Type); mapped {
					pending = typ
				}
			}
		}

		var state nodeState
		for {
			exists, stat, next, err := sub.svc.conn.ExistsW(full)
			if err == nil {
				state, ch = observe(exists, stat), next
				break
			}
			if sub.svc.closed.Load() || errors.Is(err, zk.ErrClosing) {
				return
			}
			sub.svc.logger.Debugf("watch re-arm failed", map[string]any{"path": sub.path, "error": err})
			resync = true
			if !sub.waitForSession() {
				return
			}
		}

		typ := coord.EventResync
		if !resync {
			typ = change(known, state)
			if typ == 0 {
				typ = pending
			}
		}
		if typ != 0 && !sub.emit(typ) {
			return
		}
		known, pending, resync = state, 0, false
	}
}

// waitForSession blocks until the session is connected and the re-arm delay
// has passed. It returns false if the subscription or service closed.
func (sub *subscription) waitForSession() bool {
	select {
	case <-sub.svc.connectedCh():
	case <-sub.done:
		return false
	case <-sub.svc.done:
		return false
	}
	t := time.NewTimer(sub.svc.rearm)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-sub.done:
		return false
	case <-sub.svc.done:
		return false
	}
}

// emit queues an event. It reports false once the subscription is closed.
func (sub *subscription) emit(typ coord.EventType) bool {
	return sub.Push(coord.Event{Type: typ, Path: sub.path})
}

func eventType(t zk.EventType) (coord.EventType, bool) {
	switch t {
	case zk.EventNodeCreated:
		return coord.EventCreated, true
	case zk.EventNodeDeleted:
		return coord.EventDeleted, true
	case zk.EventNodeDataChanged:
		return coord.EventDataChanged, true
	default:
		return 0, false
	}
}

// Close stops the subscription and discards undelivered events. The pending
// server-side watch, if any, is left to fire into a discarded channel.
func (sub *subscription) Close() error {
	sub.once.Do(func() {
		close(sub.done)
		sub.EventQueue.Close()
	})
	return nil
}
