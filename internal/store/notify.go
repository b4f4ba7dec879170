package store

import "sync"

// Topics for change notification. Per-entity topics append the entity key.
const (
	topicDevices     = "devices/"     // devices/{userID}
	topicPrivateKeys = "xsign-private"
	topicRoomPolicy  = "room-policy/" // room-policy/{roomID}
	topicRequests    = "requests"
	topicAudit       = "audit"
)

// Subscription is a reactive stream of query snapshots. C closes when the
// subscription or the store is closed; no handler outlives store closure.
type Subscription[T any] struct {
	C      <-chan T
	cancel func()
}

// Close disposes the subscription. Idempotent.
func (s *Subscription[T]) Close() { s.cancel() }

type watcher struct {
	topics map[string]struct{}
	signal chan struct{}
	done   chan struct{}
}

// hub fans out commit notifications to watchers.
type hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	closed   bool
}

func newHub() *hub {
	return &hub{watchers: make(map[*watcher]struct{})}
}

func (h *hub) add(topics []string) (*watcher, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	w := &watcher{
		topics: make(map[string]struct{}, len(topics)),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		w.topics[t] = struct{}{}
	}
	h.watchers[w] = struct{}{}
	return w, true
}

func (h *hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		delete(h.watchers, w)
		close(w.done)
	}
}

func (h *hub) notify(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		for _, t := range topics {
			if _, ok := w.topics[t]; !ok {
				continue
			}
			// Coalesce: a pending signal already covers this change.
			select {
			case w.signal <- struct{}{}:
			default:
			}
			break
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for w := range h.watchers {
		delete(h.watchers, w)
		close(w.done)
	}
}

// watch runs query once up front and again after every notification on one
// of the topics, sending each snapshot to the subscription channel. Slow
// receivers see only the latest snapshot.
func watch[T any](s *Store, topics []string, query func() (T, error)) *Subscription[T] {
	ch := make(chan T, 1)
	w, ok := s.hub.add(topics)
	if !ok {
		close(ch)
		return &Subscription[T]{C: ch, cancel: func() {}}
	}

	var once sync.Once
	sub := &Subscription[T]{
		C:      ch,
		cancel: func() { once.Do(func() { s.hub.remove(w) }) },
	}

	go func() {
		defer close(ch)
		for {
			if v, err := query(); err == nil {
				// Replace any unconsumed snapshot with the fresh one.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- v:
				default:
				}
			}
			select {
			case <-w.done:
				return
			case <-w.signal:
			}
		}
	}()
	return sub
}
