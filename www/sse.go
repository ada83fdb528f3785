package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskadmin/engine"
	"taskadmin/metrics"
)

type SSEEvent struct {
	Event string
	Data  string
}

// EventHub fans engine events out to connected browsers.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	keepalive time.Duration
	metrics   *metrics.Metrics
	log       logrus.FieldLogger

	bus  *engine.EventBus
	subs []engine.SubscriberID
}

func NewEventHub(m *metrics.Metrics, log logrus.FieldLogger) *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
		keepalive: 30 * time.Second,
		metrics:   m,
		log:       log,
	}
}

func (h *EventHub) Start() {
	go h.run()
}

// Stop detaches from the engine bus and ends the broadcast loop.
func (h *EventHub) Stop() {
	h.stopOnce.Do(func() {
		if h.bus != nil {
			for _, id := range h.subs {
				h.bus.Unsubscribe(id)
			}
			h.subs = nil
		}
		close(h.stopChan)
		<-h.done
	})
}

func (h *EventHub) run() {
	defer close(h.done)
	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.send(evt)
		case <-keepalive.C:
			h.send(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

// send drops the event for clients whose buffer is full.
func (h *EventHub) send(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *EventHub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warnf("sse: encode %s: %v", event, err)
		return
	}
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: string(data)}:
	default:
	}
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SSEClients(n)
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SSEClients(n)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(bus *engine.EventBus) {
	h.bus = bus

	h.subs = append(h.subs, bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.ViewsUpdatedEvent)
		h.Broadcast("views-update", map[string]any{
			"trigger":      ev.Trigger,
			"generated_at": ev.GeneratedAt,
		})
	}, engine.EventViewsUpdated))

	h.subs = append(h.subs, bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.LabelChangedEvent)
		h.Broadcast("label-update", map[string]any{
			"action": ev.Action,
			"id":     ev.Label.ID,
			"title":  ev.Label.Title,
		})
	}, engine.EventLabelChanged))

	h.subs = append(h.subs, bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.UserStatusChangedEvent)
		h.Broadcast("user-update", map[string]any{
			"id":     ev.UserID,
			"status": ev.NewStatus,
		})
	}, engine.EventUserStatusChanged))

	h.subs = append(h.subs, bus.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.WatchErrorEvent)
		h.Broadcast("system-status", map[string]any{
			"collection": ev.Collection,
			"error":      ev.Err,
		})
	}, engine.EventWatchError))
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				h.log.Debugf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
