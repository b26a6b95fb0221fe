package devserver

import (
	"bufio"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Hub manages the server-sent-event sessions waiting for reload signals.
type Hub struct {
	mu         sync.RWMutex
	nextID     int
	clients    map[int]*client
	closed     bool
	generation int
	heartbeat  time.Duration
	logger     *slog.Logger
}

type client struct {
	id   int
	ch   chan int
	done chan struct{}
}

// NewHub returns an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: map[int]*client{}, heartbeat: 30 * time.Second, logger: logger}
}

// Clients returns the number of connected sessions.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP implements the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	c := &client{ch: make(chan int, 8), done: make(chan struct{})}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	c.id = h.nextID
	h.nextID++
	h.clients[c.id] = c
	h.mu.Unlock()
	defer h.remove(c.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	send := func(msg string) bool {
		if _, err := bw.WriteString(msg); err != nil {
			h.logger.Debug("livereload write", "error", err)
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	if !send(": connected\n\n") {
		return
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-hb.C:
			if !send(": ping\n\n") {
				return
			}
		case gen := <-c.ch:
			if !send("event: reload\ndata: " + strconv.Itoa(gen) + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Broadcast signals every session to reload. Sessions whose buffer is
// full are dropped; the browser reconnects and reloads anyway.
func (h *Hub) Broadcast() int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.generation++
	gen := h.generation
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- gen:
		default:
			dropped++
			h.remove(c.id)
		}
	}
	h.logger.Debug("livereload broadcast", "generation", gen, "clients", len(snapshot), "dropped", dropped)
	return len(snapshot) - dropped
}

// Shutdown disconnects every session and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// clientScript reconnects after errors and reloads on every reload event.
const clientScript = `(() => {
  if (window.__SITEBUILD_LR__) return;
  window.__SITEBUILD_LR__ = true;
  function connect() {
    const es = new EventSource('/__livereload');
    es.addEventListener('reload', () => {
      console.log('[sitebuilder] change detected, reloading');
      location.reload();
    });
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
