package handler

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"standwatch/internal/domain"
	"standwatch/internal/ingestor"
	"standwatch/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore() *store.Store {
	s := store.New(40)
	s.Load([]domain.Stand{
		{Name: "1", Coordinate: domain.Coordinate{24.8000, 59.4100}, TileID: "t1"},
		{Name: "2", Coordinate: domain.Coordinate{24.8010, 59.4100}, TileID: "t1"},
		{Name: "A5", Coordinate: domain.Coordinate{24.8300, 59.4200}, TileID: "t2"},
	})
	s.Recompute([]domain.AircraftPosition{
		{Callsign: "FIN1AB", Coordinate: domain.Coordinate{24.8000, 59.4100}, AircraftType: "A320"},
	})
	return s
}

func testMux(s *store.Store) *http.ServeMux {
	h := NewHTTPHandler(s)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/stands", h.ListStands)
	mux.HandleFunc("GET /v1/stands/{name}", h.GetStand)
	mux.HandleFunc("GET /v1/closest", h.ClosestStands)
	mux.HandleFunc("GET /v1/positions", h.ListPositions)
	return mux
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestListStands(t *testing.T) {
	mux := testMux(testStore())

	tests := []struct {
		name     string
		target   string
		status   int
		count    int
		occupied int
	}{
		{"all", "/v1/stands", http.StatusOK, 3, 1},
		{"occupied", "/v1/stands?occupied=true", http.StatusOK, 1, 1},
		{"free", "/v1/stands?occupied=false", http.StatusOK, 2, 0},
		{"bbox", "/v1/stands?bbox=59.415,24.82,59.43,24.84", http.StatusOK, 1, 0},
		{"bad occupied", "/v1/stands?occupied=maybe", http.StatusBadRequest, 0, 0},
		{"bad bbox", "/v1/stands?bbox=1,2,3", http.StatusBadRequest, 0, 0},
		{"inverted bbox", "/v1/stands?bbox=60,25,59,24", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, mux, tt.target)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.status, rr.Body)
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp StandsResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Count != tt.count || len(resp.Stands) != tt.count || resp.Occupied != tt.occupied {
				t.Errorf("count=%d occupied=%d, want %d/%d", resp.Count, resp.Occupied, tt.count, tt.occupied)
			}
		})
	}
}

func TestGetStand(t *testing.T) {
	mux := testMux(testStore())

	rr := get(t, mux, "/v1/stands/1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var st domain.Stand
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Occupied || st.Callsign != "FIN1AB" || st.AircraftType != "A320" {
		t.Errorf("stand = %+v", st)
	}

	if rr := get(t, mux, "/v1/stands/99"); rr.Code != http.StatusNotFound {
		t.Errorf("missing stand status = %d", rr.Code)
	}
}

func TestGetStandNamedClosest(t *testing.T) {
	s := store.New(40)
	s.Load([]domain.Stand{{Name: "closest", Coordinate: domain.Coordinate{24.8, 59.41}}})
	mux := testMux(s)

	rr := get(t, mux, "/v1/stands/closest")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var st domain.Stand
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Name != "closest" {
		t.Errorf("stand = %+v", st)
	}
}

func TestClosestStandsEndpoint(t *testing.T) {
	mux := testMux(testStore())

	rr := get(t, mux, "/v1/closest?lon=24.8009&lat=59.41&limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	var resp struct {
		Stands []struct {
			Name      string  `json:"name"`
			DistanceM float64 `json:"distanceM"`
		} `json:"stands"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Stands) != 2 || resp.Stands[0].Name != "2" || resp.Stands[1].Name != "1" {
		t.Fatalf("closest = %+v", resp.Stands)
	}
	if resp.Stands[0].DistanceM > resp.Stands[1].DistanceM {
		t.Errorf("distances not ascending: %+v", resp.Stands)
	}

	for _, target := range []string{
		"/v1/closest?lat=59.41",
		"/v1/closest?lon=200&lat=59.41",
		"/v1/closest?lon=24.8&lat=59.41&limit=0",
		"/v1/closest?lon=24.8&lat=59.41&limit=abc",
	} {
		if rr := get(t, mux, target); rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rr.Code)
		}
	}
}

func TestListPositions(t *testing.T) {
	rr := get(t, testMux(testStore()), "/v1/positions")
	var resp PositionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Positions[0].Callsign != "FIN1AB" {
		t.Errorf("positions = %+v", resp)
	}

	empty := store.New(40)
	rr = get(t, testMux(empty), "/v1/positions")
	if !strings.Contains(rr.Body.String(), `"positions":[]`) {
		t.Errorf("empty positions body = %s", rr.Body)
	}
}

type fixedState ingestor.State

func (f fixedState) State() ingestor.State { return ingestor.State(f) }

func TestReadyz(t *testing.T) {
	s := testStore()

	rr := get(t, http.HandlerFunc(NewHealthHandler(fixedState(ingestor.StateUninitialized), s).Readyz), "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("uninitialized status = %d", rr.Code)
	}

	rr = get(t, http.HandlerFunc(NewHealthHandler(fixedState(ingestor.StateReady), s).Readyz), "/readyz")
	if rr.Code != http.StatusOK {
		t.Errorf("ready status = %d", rr.Code)
	}
	var resp ReadyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Ready || resp.State != "ready" || resp.StandCount != 3 {
		t.Errorf("readyz = %+v", resp)
	}
}

type fakeClients struct{}

func (fakeClients) ClientCount() int { return 2 }
func (fakeClients) TileCount() int   { return 5 }

func TestStats(t *testing.T) {
	h := NewStatsHandler(testStore(), fakeClients{}, "EETN")
	rr := get(t, http.HandlerFunc(h.GetStats), "/v1/stats")

	var resp StatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stands.Layout != "EETN" || resp.Stands.Total != 3 || resp.Stands.Occupied != 1 || resp.Stands.Free != 2 {
		t.Errorf("stand stats = %+v", resp.Stands)
	}
	if resp.WebSocket.Clients != 2 || resp.WebSocket.Tiles != 5 {
		t.Errorf("websocket stats = %+v", resp.WebSocket)
	}
}

func TestMiddleware(t *testing.T) {
	big := strings.Repeat("stand ", 1000)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(big))
	})
	h := RequestLogger(testLogger())(CORSMiddleware(GzipMiddleware(inner)))

	req := httptest.NewRequest(http.MethodGet, "/v1/stands", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(zr)
	if string(body) != big {
		t.Error("decompressed body mismatch")
	}

	pre := httptest.NewRecorder()
	h.ServeHTTP(pre, httptest.NewRequest(http.MethodOptions, "/v1/stands", nil))
	if pre.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", pre.Code)
	}
}
