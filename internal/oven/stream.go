package oven

import "sync"

// defaultSubscriptionBuffer is the per-subscriber queue depth.
const defaultSubscriptionBuffer = 16

// Subscription is one consumer's view of a device's state changes.
//
// The channel returned by Updates is closed when the subscription or the
// multiplexer is closed. A slow consumer loses its oldest unread updates,
// never anyone else's.
type Subscription struct {
	deviceID string
	ch       chan *ChangeSet
	mux      *Multiplexer
	once     sync.Once
}

// Updates returns the channel change sets are delivered on.
func (s *Subscription) Updates() <-chan *ChangeSet {
	return s.ch
}

// DeviceID returns the device this subscription watches.
func (s *Subscription) DeviceID() string {
	return s.deviceID
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mux.remove(s)
	})
}

// Multiplexer fans out ChangeSets to per-device subscribers.
//
// Publishing never blocks: each subscriber has a bounded queue, and when a
// queue is full the oldest unread update for that subscriber is dropped to
// make room. Consumers catch up from the Snapshot carried by every
// ChangeSet, so dropped intermediates are recoverable.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Multiplexer struct {
	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	bufSize int
	closed  bool
}

// NewMultiplexer creates a multiplexer with the given per-subscriber
// buffer size. Sizes below 1 use the default.
func NewMultiplexer(bufSize int) *Multiplexer {
	if bufSize < 1 {
		bufSize = defaultSubscriptionBuffer
	}
	return &Multiplexer{
		subs:    make(map[string]map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a consumer for one device's changes.
func (m *Multiplexer) Subscribe(deviceID string) *Subscription {
	sub := &Subscription{
		deviceID: deviceID,
		ch:       make(chan *ChangeSet, m.bufSize),
		mux:      m,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(sub.ch)
		return sub
	}

	if m.subs[deviceID] == nil {
		m.subs[deviceID] = make(map[*Subscription]struct{})
	}
	m.subs[deviceID][sub] = struct{}{}

	return sub
}

// Publish delivers a change set to every subscriber of its device.
// Never blocks; a full subscriber queue drops its oldest entry.
func (m *Multiplexer) Publish(cs *ChangeSet) {
	if cs == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	for sub := range m.subs[cs.DeviceID] {
		select {
		case sub.ch <- cs:
		default:
			// Full: evict the oldest unread update, then deliver.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- cs:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions for a device.
func (m *Multiplexer) SubscriberCount(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[deviceID])
}

// Close detaches and closes every subscription. Publish becomes a no-op.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for _, set := range m.subs {
		for sub := range set {
			close(sub.ch)
		}
	}
	m.subs = make(map[string]map[*Subscription]struct{})
}

// remove detaches one subscription and closes its channel.
func (m *Multiplexer) remove(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	set := m.subs[sub.deviceID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(m.subs, sub.deviceID)
	}
	close(sub.ch)
}
