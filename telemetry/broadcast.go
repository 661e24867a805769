package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Control is a message a websocket client may send to the simulation.
type Control struct {
	Paused *bool `json:"paused,omitempty"`
}

// Hub streams JSON messages to websocket clients on /ws and forwards their
// controls to the frame loop.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	latest  []byte

	controls chan Control
}

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
		controls: make(chan Control, 8),
	}
}

// Controls returns received client controls. Controls are dropped when the
// frame loop falls behind.
func (h *Hub) Controls() <-chan Control {
	return h.controls
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every client. New clients receive the most
// recent message on connect.
func (h *Hub) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latest = data
	h.mu.Unlock()

	h.mu.RLock()
	var failed []*websocket.Conn
	for conn, wmu := range h.clients {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		wmu.Unlock()
		if err != nil {
			failed = append(failed, conn)
		}
	}
	h.mu.RUnlock()

	if len(failed) > 0 {
		h.mu.Lock()
		for _, conn := range failed {
			delete(h.clients, conn)
			conn.Close()
		}
		h.mu.Unlock()
	}
	return nil
}

// ServeHTTP upgrades the request and reads controls until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = wmu
	latest := h.latest
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	if latest != nil {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, latest)
		wmu.Unlock()
		if err != nil {
			return
		}
	}

	for {
		var c Control
		if err := conn.ReadJSON(&c); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}
		select {
		case h.controls <- c:
		default:
		}
	}
}

// Serve listens on addr and serves the hub at /ws until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("stats server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
