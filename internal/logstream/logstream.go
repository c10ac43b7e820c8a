// Package logstream fans the daemon's structured log output out to
// operator websocket clients, per spec.md §6's tail-logs command.
package logstream

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is an io.Writer that mirrors every write to each connected
// websocket client. A line is dropped for any client whose buffer is
// full rather than allowed to block log output; the client stays
// connected.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub constructs an empty hub ready to be used as a log sink and
// mounted as an http.Handler.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

// Write implements io.Writer so a *Hub can sit inside an io.MultiWriter
// alongside the console writer.
func (h *Hub) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)

	h.mu.Lock()
	for ch := range h.clients {
		select {
		case ch <- line:
		default:
			// client too slow, drop the line rather than block logging
		}
	}
	h.mu.Unlock()
	return len(p), nil
}

// ServeHTTP upgrades the request to a websocket and streams log lines
// to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	for line := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			log.Debug().Err(err).Msg("log stream client disconnected")
			return
		}
	}
}
