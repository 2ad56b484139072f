package castv2

import (
	"sync"

	"github.com/ofmooseandmen/castv2/receiver"
)

// ConnectionListener receives the three lifecycle events a Controller
// delivers at most once per transition.
type ConnectionListener interface {
	// ConnectionDead fires when the heartbeat engine declares the
	// device unreachable.
	ConnectionDead()
	// RemoteConnectionClosed fires when the device sends CLOSE on the
	// connection namespace before the caller called Disconnect.
	RemoteConnectionClosed()
	// DeviceStatusUpdated fires for every unsolicited RECEIVER_STATUS
	// broadcast from the device.
	DeviceStatusUpdated(status receiver.Status)
}

// listenerSet is a thread-safe ordered-enough set of ConnectionListener.
// Order is not guaranteed between distinct listeners, matching the
// socket channel's own dispatch contract.
type listenerSet struct {
	mu    sync.Mutex
	items map[ConnectionListener]struct{}
}

func newListenerSet() *listenerSet {
	return &listenerSet{items: make(map[ConnectionListener]struct{})}
}

func (s *listenerSet) add(l ConnectionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[l] = struct{}{}
}

func (s *listenerSet) remove(l ConnectionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, l)
}

func (s *listenerSet) snapshot() []ConnectionListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConnectionListener, 0, len(s.items))
	for l := range s.items {
		out = append(out, l)
	}
	return out
}
