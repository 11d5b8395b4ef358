package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"standwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTileID(t *testing.T) {
	tests := []struct {
		lat, lon float64
		zoom     int
		want     string
	}{
		{0, 0, 1, "1/1/1"},
		{59.41, 24.8, 16, "16/37282/19244"},
		{85.1, -180, 2, "2/0/0"},
		{-89.9, 180, 3, "3/7/7"},
	}
	for _, tt := range tests {
		if got := TileID(tt.lat, tt.lon, tt.zoom); got != tt.want {
			t.Errorf("TileID(%v, %v, %d) = %s, want %s", tt.lat, tt.lon, tt.zoom, got, tt.want)
		}
	}
	if got := TileOf(domain.Coordinate{24.8, 59.41}, 16); got != "16/37282/19244" {
		t.Errorf("TileOf = %s", got)
	}
}

func TestParseTileID(t *testing.T) {
	z, x, y, ok := ParseTileID("16/37282/19244")
	if !ok || z != 16 || x != 37282 || y != 19244 {
		t.Errorf("ParseTileID = %d %d %d %v", z, x, y, ok)
	}
	if _, _, _, ok := ParseTileID("bogus"); ok {
		t.Error("ParseTileID accepted bogus input")
	}
}

func TestTilesInBBox(t *testing.T) {
	bb := domain.BoundingBox{MinLat: 59.40, MinLon: 24.78, MaxLat: 59.42, MaxLon: 24.82}
	tiles := TilesInBBox(bb, 14)
	if len(tiles) == 0 {
		t.Fatal("no tiles for airport bbox")
	}
	center := TileOf(domain.Coordinate{24.8, 59.41}, 14)
	found := false
	for _, id := range tiles {
		if id == center {
			found = true
		}
	}
	if !found {
		t.Errorf("tiles %v do not include %s", tiles, center)
	}

	world := domain.BoundingBox{MinLat: -80, MinLon: -170, MaxLat: 80, MaxLon: 170}
	if got := TilesInBBox(world, 16); got != nil {
		t.Errorf("oversized bbox returned %d tiles", len(got))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

type countingSends struct{ n atomic.Int64 }

func (c *countingSends) IncWSMessagesOut() { c.n.Add(1) }

func TestHubFanoutByTile(t *testing.T) {
	h := NewHub(testLogger())
	counter := &countingSends{}
	h.SetSendCounter(counter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := NewClient("a", 4)
	b := NewClient("b", 4)
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, []string{"16/1/1"})
	h.Subscribe(b, []string{"16/2/2"})

	now := time.Now()
	h.Broadcast([]domain.StandDelta{
		{Stand: &domain.Stand{Name: "1", Occupied: true, Callsign: "FIN1AB", TileID: "16/1/1"}, TileID: "16/1/1", ChangedAt: now},
	})

	select {
	case data := <-a.Send:
		var msg DeltaMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != "delta" || len(msg.Payload.Stands) != 1 || msg.Payload.Stands[0].Callsign != "FIN1AB" {
			t.Errorf("unexpected message %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("client a got no delta")
	}

	select {
	case data := <-b.Send:
		t.Errorf("client b got %s for a tile it does not watch", data)
	case <-time.After(50 * time.Millisecond):
	}

	if counter.n.Load() != 1 {
		t.Errorf("sent counter = %d", counter.n.Load())
	}

	h.Unsubscribe(a, []string{"16/1/1"})
	if a.HasTile("16/1/1") || h.TileCount() != 1 {
		t.Errorf("unsubscribe left tile state: has=%v tiles=%d", a.HasTile("16/1/1"), h.TileCount())
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := NewClient("c", 1)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })
	h.Subscribe(c, []string{"16/1/1"})
	h.Unregister(c)

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	if h.ClientCount() != 0 || h.TileCount() != 0 {
		t.Errorf("clients=%d tiles=%d after unregister", h.ClientCount(), h.TileCount())
	}
	if c.Offer([]byte("late")) {
		t.Error("Offer accepted data on a closed client")
	}
}

func TestBroadcastEmptyIsNoop(t *testing.T) {
	h := NewHub(testLogger())
	h.Broadcast(nil)
	if len(h.broadcast) != 0 {
		t.Error("empty batch queued")
	}
}
