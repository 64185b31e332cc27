package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kind names an event channel on the hub.
type Kind string

const (
	KindState    Kind = "state-change"
	KindVolume   Kind = "volume-change"
	KindMute     Kind = "mute-change"
	KindTrack    Kind = "track-change"
	KindTopology Kind = "topology-change"
)

// Event is one observed change: previous and current value for a
// device, immutable once published. Topology events carry no device.
type Event struct {
	Kind     Kind
	DeviceID string
	Prev     string
	Curr     string
	At       time.Time
}

// Changed reports whether the event carries an observable change.
// Devices redeliver identical notifications; those must neither enter
// history nor wake a waiter.
func (e Event) Changed() bool { return e.Prev != e.Curr }

// Listener receives published events. Listeners run synchronously on
// the publishing goroutine and must not block.
type Listener func(Event)

// DefaultHistoryLimit bounds the per-device event history.
const DefaultHistoryLimit = 50

// Hub is the process-wide event fan-out: notification ingestion
// publishes, passive listeners and wait primitives consume. Dispatch
// happens outside the lock so a listener may subscribe or unsubscribe
// reentrantly.
type Hub struct {
	mu           sync.Mutex
	listeners    map[Kind]map[string]Listener
	history      map[string][]Event
	historyLimit int

	log zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		listeners:    map[Kind]map[string]Listener{},
		history:      map[string][]Event{},
		historyLimit: DefaultHistoryLimit,
		log:          log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a listener on one channel and returns its
// registration id for Unsubscribe.
func (h *Hub) Subscribe(kind Kind, fn Listener) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners[kind] == nil {
		h.listeners[kind] = map[string]Listener{}
	}
	h.listeners[kind][id] = fn
	return id
}

func (h *Hub) Unsubscribe(kind Kind, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners[kind], id)
}

// Publish records the event and dispatches it to the channel's
// listeners. No-change events are dropped entirely.
func (h *Hub) Publish(ev Event) {
	if !ev.Changed() {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	if ev.DeviceID != "" {
		hist := append(h.history[ev.DeviceID], ev)
		if len(hist) > h.historyLimit {
			hist = hist[len(hist)-h.historyLimit:]
		}
		h.history[ev.DeviceID] = hist
	}
	targets := make([]Listener, 0, len(h.listeners[ev.Kind]))
	for _, fn := range h.listeners[ev.Kind] {
		targets = append(targets, fn)
	}
	h.mu.Unlock()

	h.log.Debug().Str("kind", string(ev.Kind)).Str("device", ev.DeviceID).
		Str("prev", ev.Prev).Str("curr", ev.Curr).Msg("event")
	for _, fn := range targets {
		fn(ev)
	}
}

// HasListeners reports whether any listener is registered on the
// channel.
func (h *Hub) HasListeners(kind Kind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[kind]) > 0
}

// History returns a copy of the retained events for one device, oldest
// first.
func (h *Hub) History(deviceID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.history[deviceID]...)
}

// DropDevice forgets a device's history when it leaves the topology.
func (h *Hub) DropDevice(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, deviceID)
}
