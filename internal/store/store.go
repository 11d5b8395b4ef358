package store

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"standwatch/internal/domain"
	"standwatch/internal/geo"
)

type ListOptions struct {
	Occupied *bool
	BBox     *domain.BoundingBox
}

// table is an immutable generation of stand state. Readers load the current
// pointer and never observe a half-written recompute.
type table struct {
	stands    []domain.Stand
	index     map[string]int
	byTile    map[string][]int
	positions []domain.AircraftPosition
	occupied  int
	updatedAt time.Time
}

// Store owns the stand table. Writers (Load, Recompute) are serialized;
// readers are lock-free.
type Store struct {
	writeMu  sync.Mutex
	current  atomic.Pointer[table]
	radiusKm float64
}

func New(occupancyRadiusM float64) *Store {
	s := &Store{radiusKm: occupancyRadiusM / 1000}
	s.current.Store(newTable(nil))
	return s
}

func newTable(stands []domain.Stand) *table {
	t := &table{
		stands: stands,
		index:  make(map[string]int, len(stands)),
		byTile: make(map[string][]int),
	}
	for i, st := range stands {
		t.index[st.Name] = i
		t.byTile[st.TileID] = append(t.byTile[st.TileID], i)
		if st.Occupied {
			t.occupied++
		}
	}
	return t
}

// Load installs a freshly parsed layout with every stand unoccupied.
func (s *Store) Load(stands []domain.Stand) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	fresh := make([]domain.Stand, len(stands))
	for i, st := range stands {
		fresh[i] = domain.Stand{Name: st.Name, Coordinate: st.Coordinate, TileID: st.TileID}
	}
	t := newTable(fresh)
	t.updatedAt = time.Now()
	s.current.Store(t)
}

type claim struct {
	callsign     string
	aircraftType string
	distKm       float64
}

// Recompute derives occupancy from scratch for the given positions and
// returns the stands whose state differs from the previous generation.
//
// Each position claims the nearest stand inside the occupancy radius. When
// several positions claim one stand the nearest wins, and equal distances go
// to the lexically smallest callsign.
func (s *Store) Recompute(positions []domain.AircraftPosition) []domain.StandDelta {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()

	ordered := slices.Clone(positions)
	slices.SortStableFunc(ordered, func(a, b domain.AircraftPosition) int {
		return cmp.Compare(a.Callsign, b.Callsign)
	})

	claims := make(map[int]claim)
	for _, p := range ordered {
		idx, dist, ok := nearest(prev.stands, p.Coordinate)
		if !ok || dist >= s.radiusKm {
			continue
		}
		if existing, taken := claims[idx]; taken && existing.distKm <= dist {
			continue
		}
		claims[idx] = claim{callsign: p.Callsign, aircraftType: p.AircraftType, distKm: dist}
	}

	stands := make([]domain.Stand, len(prev.stands))
	for i, st := range prev.stands {
		stands[i] = domain.Stand{Name: st.Name, Coordinate: st.Coordinate, TileID: st.TileID}
		if c, ok := claims[i]; ok {
			stands[i].Occupied = true
			stands[i].Callsign = c.callsign
			stands[i].AircraftType = c.aircraftType
		}
	}

	next := newTable(stands)
	next.positions = slices.Clone(positions)
	next.updatedAt = time.Now()

	var deltas []domain.StandDelta
	for i := range stands {
		if hasChanged(&prev.stands[i], &stands[i]) {
			st := stands[i]
			deltas = append(deltas, domain.StandDelta{
				Stand:     &st,
				TileID:    st.TileID,
				ChangedAt: next.updatedAt,
			})
		}
	}

	s.current.Store(next)
	return deltas
}

// nearest returns the index of the first stand in ClosestStands order.
func nearest(stands []domain.Stand, c domain.Coordinate) (int, float64, bool) {
	order := closest(stands, c)
	if len(order) == 0 {
		return 0, 0, false
	}
	return order[0].idx, order[0].dist, true
}

type ranked struct {
	idx  int
	dist float64
}

func closest(stands []domain.Stand, c domain.Coordinate) []ranked {
	order := make([]ranked, len(stands))
	for i, st := range stands {
		order[i] = ranked{idx: i, dist: geo.DistanceKm(c, st.Coordinate)}
	}
	slices.SortStableFunc(order, func(a, b ranked) int {
		return cmp.Compare(a.dist, b.dist)
	})
	return order
}

// ClosestStands returns all stands ordered by ascending distance from c.
// Ties keep layout order.
func (s *Store) ClosestStands(c domain.Coordinate) []*domain.Stand {
	t := s.current.Load()
	order := closest(t.stands, c)
	result := make([]*domain.Stand, 0, len(order))
	for _, r := range order {
		st := t.stands[r.idx]
		result = append(result, &st)
	}
	return result
}

// Get returns the current record for name. The result may be superseded by
// the next recompute.
func (s *Store) Get(name string) (*domain.Stand, bool) {
	t := s.current.Load()
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	st := t.stands[i]
	return &st, true
}

func (s *Store) List(opts ListOptions) []*domain.Stand {
	t := s.current.Load()
	result := make([]*domain.Stand, 0, len(t.stands))
	for _, st := range t.stands {
		if opts.Occupied != nil && st.Occupied != *opts.Occupied {
			continue
		}
		if opts.BBox != nil && !opts.BBox.Contains(st.Coordinate) {
			continue
		}
		result = append(result, &st)
	}
	return result
}

// Snapshot returns every stand in layout order.
func (s *Store) Snapshot() []*domain.Stand {
	return s.List(ListOptions{})
}

func (s *Store) SnapshotForTiles(tileIDs []string) []*domain.Stand {
	t := s.current.Load()

	seen := make(map[string]struct{})
	var result []*domain.Stand

	for _, tileID := range tileIDs {
		if _, dup := seen[tileID]; dup {
			continue
		}
		seen[tileID] = struct{}{}
		for _, i := range t.byTile[tileID] {
			st := t.stands[i]
			result = append(result, &st)
		}
	}
	return result
}

// Positions returns the positions used by the last recompute.
func (s *Store) Positions() []domain.AircraftPosition {
	return slices.Clone(s.current.Load().positions)
}

func (s *Store) Count() int {
	return len(s.current.Load().stands)
}

func (s *Store) OccupiedCount() int {
	return s.current.Load().occupied
}

func (s *Store) UpdatedAt() time.Time {
	return s.current.Load().updatedAt
}

func hasChanged(before, after *domain.Stand) bool {
	return before.Occupied != after.Occupied ||
		before.Callsign != after.Callsign ||
		before.AircraftType != after.AircraftType
}
