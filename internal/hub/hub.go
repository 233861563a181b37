package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/logging"
	"github.com/bdmorin/the-no-shop/internal/metrics"
)

// sendBuffer is how many framed events an observer may fall behind before the
// hub gives up on it and closes the stream.
const sendBuffer = 64

// SnapshotFunc produces the current full state for a newly attached observer.
type SnapshotFunc func() *domain.Snapshot

// Hub fans typed events out to every attached SSE observer. Broadcast never
// blocks: an observer whose send buffer is full is dropped and its stream
// closed, so a stalled browser tab cannot slow the agent-facing side.
type Hub struct {
	mu        sync.Mutex
	observers map[chan []byte]struct{}

	snapshot  SnapshotFunc
	keepalive time.Duration
	log       *logging.Logger
}

func New(snapshot SnapshotFunc) *Hub {
	return &Hub{
		observers: make(map[chan []byte]struct{}),
		snapshot:  snapshot,
		keepalive: 15 * time.Second,
		log:       logging.New("hub"),
	}
}

// Count reports the number of attached observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Broadcast frames ev once and offers it to every observer. Marshal failures
// are logged and swallowed; state changes must never fail on fan-out.
func (h *Hub) Broadcast(ev domain.Event) {
	frame, err := frameEvent(ev)
	if err != nil {
		h.log.Error("event_marshal_failed", nil, err)
		return
	}

	metrics.Global().EventsBroadcast.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.observers {
		select {
		case ch <- frame:
		default:
			// Buffer full: the observer is too slow to keep. Closing the
			// channel ends its Register loop.
			delete(h.observers, ch)
			close(ch)
			metrics.Global().ObserversDropped.Add(1)
			h.log.Warn("observer_dropped", map[string]interface{}{"observers": len(h.observers)}, nil)
		}
	}
}

// Register attaches the request as an SSE observer and blocks until the
// client disconnects or the observer is dropped. The first frame on the
// stream is always the full current state.
func (h *Hub) Register(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Snapshot assembly and observer attach form one critical section with
	// respect to Broadcast: an event raised while the snapshot is being
	// built lands in the new observer's buffer and is delivered right after
	// the snapshot frame, never lost to the late joiner.
	h.mu.Lock()
	var snapFrame []byte
	if h.snapshot != nil {
		var err error
		snapFrame, err = frameEvent(domain.Event{
			Type:     domain.EventFullState,
			Snapshot: h.snapshot(),
		})
		if err != nil {
			h.mu.Unlock()
			h.log.Error("snapshot_marshal_failed", nil, err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
	}
	ch := make(chan []byte, sendBuffer)
	h.observers[ch] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()

	h.log.Info("observer_attached", map[string]interface{}{"observers": n})
	defer h.detach(ch)

	if snapFrame != nil {
		if _, err := w.Write(snapFrame); err != nil {
			return
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Comment frame: ignored by EventSource, keeps proxies from
			// closing the idle connection.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) attach() chan []byte {
	ch := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.observers[ch] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()
	h.log.Info("observer_attached", map[string]interface{}{"observers": n})
	return ch
}

func (h *Hub) detach(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.observers[ch]; ok {
		delete(h.observers, ch)
		close(ch)
	}
	n := len(h.observers)
	h.mu.Unlock()
	h.log.Info("observer_detached", map[string]interface{}{"observers": n})
}

func frameEvent(ev domain.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, data)), nil
}
