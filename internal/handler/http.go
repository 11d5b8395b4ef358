package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"standwatch/internal/domain"
	"standwatch/internal/geo"
	"standwatch/internal/store"
)

const (
	defaultClosestLimit = 5
	maxClosestLimit     = 50
)

type HTTPHandler struct {
	store *store.Store
}

func NewHTTPHandler(store *store.Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

type StandsResponse struct {
	Stands     []*domain.Stand `json:"stands"`
	Count      int             `json:"count"`
	Occupied   int             `json:"occupied"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	ServerTime time.Time       `json:"serverTime"`
}

func (h *HTTPHandler) ListStands(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	opts := store.ListOptions{}

	if occStr := r.URL.Query().Get("occupied"); occStr != "" {
		occ, err := strconv.ParseBool(occStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid occupied parameter: must be true or false")
			return
		}
		opts.Occupied = &occ
	}

	if bboxStr := r.URL.Query().Get("bbox"); bboxStr != "" {
		bbox, err := parseBBox(bboxStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.BBox = bbox
	}

	stands := h.store.List(opts)
	occupied := 0
	for _, st := range stands {
		if st.Occupied {
			occupied++
		}
	}

	respondJSON(w, http.StatusOK, StandsResponse{
		Stands:     stands,
		Count:      len(stands),
		Occupied:   occupied,
		UpdatedAt:  h.store.UpdatedAt(),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetStand(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	name := r.PathValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "missing stand name")
		return
	}

	stand, ok := h.store.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "stand not found")
		return
	}

	respondJSON(w, http.StatusOK, stand)
}

type ClosestStand struct {
	*domain.Stand
	DistanceM float64 `json:"distanceM"`
}

type ClosestResponse struct {
	Origin domain.Coordinate `json:"origin"`
	Stands []ClosestStand    `json:"stands"`
}

func (h *HTTPHandler) ClosestStands(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	q := r.URL.Query()

	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	origin := domain.Coordinate{lon, lat}
	if errLon != nil || errLat != nil || !origin.Valid() {
		respondError(w, http.StatusBadRequest, "lon and lat are required decimal degrees")
		return
	}

	limit := defaultClosestLimit
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > maxClosestLimit {
			respondError(w, http.StatusBadRequest, "invalid limit parameter: must be 1-50")
			return
		}
		limit = n
	}

	ordered := h.store.ClosestStands(origin)
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	result := make([]ClosestStand, 0, len(ordered))
	for _, st := range ordered {
		result = append(result, ClosestStand{Stand: st, DistanceM: geo.DistanceM(origin, st.Coordinate)})
	}

	respondJSON(w, http.StatusOK, ClosestResponse{Origin: origin, Stands: result})
}

type PositionsResponse struct {
	Positions []domain.AircraftPosition `json:"positions"`
	Count     int                       `json:"count"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// ListPositions returns the filtered positions behind the current occupancy.
func (h *HTTPHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	ServerStats.IncRequests()
	positions := h.store.Positions()
	if positions == nil {
		positions = []domain.AircraftPosition{}
	}
	respondJSON(w, http.StatusOK, PositionsResponse{
		Positions: positions,
		Count:     len(positions),
		UpdatedAt: h.store.UpdatedAt(),
	})
}

// parseBBox parses "minLat,minLon,maxLat,maxLon".
func parseBBox(s string) (*domain.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("invalid bbox format: expected minLat,minLon,maxLat,maxLon")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("invalid bbox values: " + err.Error())
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return nil, errors.New("invalid bbox: min exceeds max")
	}
	return &domain.BoundingBox{
		MinLat: v[0], MinLon: v[1],
		MaxLat: v[2], MaxLon: v[3],
	}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
