package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"standwatch/internal/store"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime         time.Time
	requestCount      atomic.Int64
	wsConnections     atomic.Int64
	wsMessagesIn      atomic.Int64
	wsMessagesOut     atomic.Int64
	snapshotPublished atomic.Int64
	snapshotFailed    atomic.Int64
	rateLimitBlocked  atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()          { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()     { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()     { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesIn()      { s.wsMessagesIn.Add(1) }
func (s *Stats) IncWSMessagesOut()     { s.wsMessagesOut.Add(1) }
func (s *Stats) IncSnapshotPublished() { s.snapshotPublished.Add(1) }
func (s *Stats) IncSnapshotFailed()    { s.snapshotFailed.Add(1) }
func (s *Stats) IncRateLimited()       { s.rateLimitBlocked.Add(1) }

// ClientCounter reports connected websocket clients; *hub.Hub implements it.
type ClientCounter interface {
	ClientCount() int
	TileCount() int
}

type StatsHandler struct {
	store      *store.Store
	clients    ClientCounter
	layoutName string
}

func NewStatsHandler(s *store.Store, clients ClientCounter, layoutName string) *StatsHandler {
	return &StatsHandler{
		store:      s,
		clients:    clients,
		layoutName: layoutName,
	}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Stands    StandStatsResponse     `json:"stands"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Snapshots SnapshotStatsResponse  `json:"snapshots"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	RateLimited   int64     `json:"rate_limited"`
}

type StandStatsResponse struct {
	Layout     string    `json:"layout"`
	Total      int       `json:"total"`
	Occupied   int       `json:"occupied"`
	Free       int       `json:"free"`
	Positions  int       `json:"positions"`
	LastUpdate time.Time `json:"last_update"`
}

type WebSocketStatsResponse struct {
	Clients     int   `json:"clients"`
	Tiles       int   `json:"tiles"`
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messages_in"`
	MessagesOut int64 `json:"messages_out"`
}

type SnapshotStatsResponse struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()

	uptime := time.Since(ServerStats.startTime)
	total, occupied := h.store.Count(), h.store.OccupiedCount()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			RateLimited:   ServerStats.rateLimitBlocked.Load(),
		},
		Stands: StandStatsResponse{
			Layout:     h.layoutName,
			Total:      total,
			Occupied:   occupied,
			Free:       total - occupied,
			Positions:  len(h.store.Positions()),
			LastUpdate: h.store.UpdatedAt(),
		},
		WebSocket: WebSocketStatsResponse{
			Connections: ServerStats.wsConnections.Load(),
			MessagesIn:  ServerStats.wsMessagesIn.Load(),
			MessagesOut: ServerStats.wsMessagesOut.Load(),
		},
		Snapshots: SnapshotStatsResponse{
			Published: ServerStats.snapshotPublished.Load(),
			Failed:    ServerStats.snapshotFailed.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.clients != nil {
		response.WebSocket.Clients = h.clients.ClientCount()
		response.WebSocket.Tiles = h.clients.TileCount()
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
