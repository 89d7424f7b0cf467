package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"example.com/tabletop/internal/rule"
	"example.com/tabletop/internal/transport"
)

// Hub accepts websocket players and hands each connection to the game
// server as a sequenced transport.
type Hub struct {
	allowOrigins map[string]bool
	logger       zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]*transport.Sequenced

	// OnConnect and OnDisconnect bracket the life of every transport.
	OnConnect    func(*transport.Sequenced)
	OnDisconnect func(*transport.Sequenced)
}

func NewHub(allow []string, logger zerolog.Logger) *Hub {
	m := map[string]bool{}
	for _, a := range allow {
		if a != "" {
			m[a] = true
		}
	}
	return &Hub{
		allowOrigins: m,
		logger:       logger,
		clients:      map[*Client]*transport.Sequenced{},
	}
}

// ServeWS upgrades the request. The user query parameter names the
// comma-separated users the connection speaks for.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !h.allowOrigins[origin] {
		http.Error(w, "forbidden origin", http.StatusForbidden)
		return
	}
	users := rule.SplitUsers(r.URL.Query().Get("user"))
	if len(users) == 0 {
		http.Error(w, "missing user", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}

	client := newClient(c, h.logger)
	seq := transport.NewSequenced(client, client.logger, "server", users...)

	h.mu.Lock()
	h.clients[client] = seq
	h.mu.Unlock()
	h.logger.Info().Str("conn", client.id).Strs("users", users).Msg("client connected")
	if h.OnConnect != nil {
		h.OnConnect(seq)
	}

	// reader
	err = seq.Run(r.Context())
	if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
		h.logger.Warn().Err(err).Str("conn", client.id).Msg("read failed")
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	_ = client.Close()
	if h.OnDisconnect != nil {
		h.OnDisconnect(seq)
	}
	h.logger.Info().Str("conn", client.id).Msg("client disconnected")
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		_ = c.Close()
	}
}
