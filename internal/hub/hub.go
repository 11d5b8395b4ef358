package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"standwatch/internal/domain"
)

// Client is one websocket subscriber and the tiles it watches.
type Client struct {
	ID    string
	Send  chan []byte
	tiles  map[string]struct{}
	closed bool
	mu     sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		tiles: make(map[string]struct{}),
	}
}

func (c *Client) HasTile(tileID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tiles[tileID]
	return ok
}

func (c *Client) Tiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tiles := make([]string, 0, len(c.tiles))
	for id := range c.tiles {
		tiles = append(tiles, id)
	}
	return tiles
}

// Offer queues data without blocking and reports whether it was accepted.
// It is safe to call after the hub has closed the client.
func (c *Client) Offer(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// SendCounter is told about every message queued to a client.
type SendCounter interface {
	IncWSMessagesOut()
}

// Hub fans stand deltas out to the clients subscribed to each delta's tile.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	tileClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []domain.StandDelta

	counter SendCounter
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		tileClients: make(map[string]map[*Client]struct{}),
		register:    make(chan *Client, 16),
		unregister:  make(chan *Client, 16),
		broadcast:   make(chan []domain.StandDelta, 64),
		logger:      logger.With("component", "hub"),
	}
}

func (h *Hub) SetSendCounter(c SendCounter) {
	h.counter = c
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case deltas := <-h.broadcast:
			h.fanout(deltas)
		}
	}
}

func (h *Hub) Subscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, tileID := range tileIDs {
		client.tiles[tileID] = struct{}{}
		if h.tileClients[tileID] == nil {
			h.tileClients[tileID] = make(map[*Client]struct{})
		}
		h.tileClients[tileID][client] = struct{}{}
	}
	client.mu.Unlock()
}

func (h *Hub) Unsubscribe(client *Client, tileIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	for _, tileID := range tileIDs {
		delete(client.tiles, tileID)
	}
	client.mu.Unlock()

	h.detach(client, tileIDs)
}

// Broadcast queues deltas for fan-out. It never blocks the refresh loop; when
// the queue is full the batch is dropped and clients catch up on their next
// subscribe snapshot.
func (h *Hub) Broadcast(deltas []domain.StandDelta) {
	if len(deltas) == 0 {
		return
	}
	select {
	case h.broadcast <- deltas:
	default:
		h.logger.Warn("broadcast channel full, dropping deltas", "count", len(deltas))
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TileCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tileClients)
}

type DeltaMessage struct {
	Type    string       `json:"type"`
	Payload DeltaPayload `json:"payload"`
}

type DeltaPayload struct {
	Stands    []*domain.Stand `json:"stands"`
	ChangedAt time.Time       `json:"changedAt"`
}

func (h *Hub) fanout(deltas []domain.StandDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perClient := make(map[*Client][]domain.StandDelta)
	for _, d := range deltas {
		for client := range h.tileClients[d.TileID] {
			perClient[client] = append(perClient[client], d)
		}
	}

	for client, ds := range perClient {
		data, err := json.Marshal(NewDeltaMessage(ds))
		if err != nil {
			h.logger.Error("failed to encode delta", "error", err)
			continue
		}
		if !client.Offer(data) {
			h.logger.Debug("client send buffer full", "client_id", client.ID)
			continue
		}
		if h.counter != nil {
			h.counter.IncWSMessagesOut()
		}
	}
}

func NewDeltaMessage(deltas []domain.StandDelta) DeltaMessage {
	msg := DeltaMessage{Type: "delta"}
	for _, d := range deltas {
		msg.Payload.Stands = append(msg.Payload.Stands, d.Stand)
		if d.ChangedAt.After(msg.Payload.ChangedAt) {
			msg.Payload.ChangedAt = d.ChangedAt
		}
	}
	return msg
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	h.detach(client, client.Tiles())
	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

// detach removes client from the tile index. Callers hold h.mu.
func (h *Hub) detach(client *Client, tileIDs []string) {
	for _, tileID := range tileIDs {
		if subs := h.tileClients[tileID]; subs != nil {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.tileClients, tileID)
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
	h.tileClients = make(map[string]map[*Client]struct{})
}
