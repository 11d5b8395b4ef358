package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"standwatch/internal/domain"
	"standwatch/internal/hub"
	"standwatch/internal/store"
)

const (
	clientBufferSize = 64
	pingInterval     = 30 * time.Second
	writeTimeout     = 5 * time.Second
)

type WSHandler struct {
	hub       *hub.Hub
	store     *store.Store
	zoomLevel int
	logger    *slog.Logger
}

func NewWSHandler(h *hub.Hub, s *store.Store, zoomLevel int, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, store: s, zoomLevel: zoomLevel, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TilesPayload selects tiles either by id or by a bounding box resolved at
// the server's tile zoom level.
type TilesPayload struct {
	TileIDs []string            `json:"tileIds"`
	BBox    *domain.BoundingBox `json:"bbox,omitempty"`
}

type SnapshotMessage struct {
	Type    string          `json:"type"`
	Payload SnapshotPayload `json:"payload"`
}

type SnapshotPayload struct {
	TileIDs   []string        `json:"tileIds"`
	Stands    []*domain.Stand `json:"stands"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.NewString(), clientBufferSize)
	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		ServerStats.IncWSMessagesIn()

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			tiles, ok := h.tiles(msg.Payload)
			if !ok {
				continue
			}
			h.hub.Subscribe(client, tiles)
			h.sendSnapshot(client, tiles)

		case "unsubscribe":
			if tiles, ok := h.tiles(msg.Payload); ok {
				h.hub.Unsubscribe(client, tiles)
			}

		case "ping":
			h.send(client, PongMessage{Type: "pong"})
		}
	}
}

func (h *WSHandler) tiles(raw json.RawMessage) ([]string, bool) {
	var payload TilesPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	tiles := payload.TileIDs
	if payload.BBox != nil {
		tiles = append(tiles, hub.TilesInBBox(*payload.BBox, h.zoomLevel)...)
	}
	return tiles, len(tiles) > 0
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) sendSnapshot(client *hub.Client, tileIDs []string) {
	stands := h.store.SnapshotForTiles(tileIDs)
	if stands == nil {
		stands = []*domain.Stand{}
	}
	h.send(client, SnapshotMessage{
		Type: "snapshot",
		Payload: SnapshotPayload{
			TileIDs:   tileIDs,
			Stands:    stands,
			UpdatedAt: h.store.UpdatedAt(),
		},
	})
}

func (h *WSHandler) send(client *hub.Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !client.Offer(data) {
		h.logger.Debug("client send buffer full", "client_id", client.ID)
		return
	}
	ServerStats.IncWSMessagesOut()
}
