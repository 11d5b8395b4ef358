package ingestor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"standwatch/internal/domain"
	"standwatch/internal/hub"
	"standwatch/internal/metrics"
	"standwatch/internal/store"
)

type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

type LayoutSource interface {
	Load(ctx context.Context) ([]domain.Stand, error)
}

type PositionSource interface {
	Refresh(ctx context.Context) ([]domain.AircraftPosition, bool, error)
}

type Broadcaster interface {
	Broadcast(deltas []domain.StandDelta)
}

// Publisher receives the full stand table after every change.
type Publisher interface {
	Publish(ctx context.Context, stands []*domain.Stand) error
}

type Recorder interface {
	ObserveTick(result string, d time.Duration)
	SetStandCounts(total, occupied int)
	SetPositions(n int, at time.Time)
}

type Options struct {
	PollInterval  time.Duration
	TileZoomLevel int
}

// Orchestrator loads the layout once and then drives refresh ticks against
// the position feed.
type Orchestrator struct {
	layout      LayoutSource
	positions   PositionSource
	store       *store.Store
	broadcaster Broadcaster
	publisher   Publisher
	recorder    Recorder
	opts        Options
	logger      *slog.Logger

	state  atomic.Int32
	initMu sync.Mutex
	tickMu sync.Mutex
}

func New(layout LayoutSource, positions PositionSource, st *store.Store, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		layout:    layout,
		positions: positions,
		store:     st,
		opts:      opts,
		logger:    logger.With("component", "orchestrator"),
	}
}

func (o *Orchestrator) SetBroadcaster(b Broadcaster) { o.broadcaster = b }
func (o *Orchestrator) SetPublisher(p Publisher)     { o.publisher = p }
func (o *Orchestrator) SetRecorder(r Recorder)       { o.recorder = r }

// Initialize loads the layout. On failure the orchestrator stays
// uninitialized and no stands are installed. Calling it again once ready
// does nothing.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.State() == StateReady {
		return nil
	}

	stands, err := o.layout.Load(ctx)
	if err != nil {
		o.logger.Error("failed to initialize", "error", err)
		return err
	}

	for i := range stands {
		stands[i].TileID = hub.TileOf(stands[i].Coordinate, o.opts.TileZoomLevel)
	}
	o.store.Load(stands)
	o.state.Store(int32(StateReady))

	if o.recorder != nil {
		o.recorder.SetStandCounts(o.store.Count(), 0)
	}
	o.publish(ctx)

	o.logger.Info("orchestrator ready", "stands", len(stands))
	return nil
}

// Tick runs one refresh cycle. Errors leave the previous occupancy in place
// and the orchestrator ready.
func (o *Orchestrator) Tick(ctx context.Context) error {
	if o.State() != StateReady {
		return domain.ErrNotInitialized
	}

	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	start := time.Now()
	positions, changed, err := o.positions.Refresh(ctx)
	if err != nil {
		o.observe(metrics.ResultError, start)
		return err
	}
	if !changed {
		o.observe(metrics.ResultUnchanged, start)
		return nil
	}

	deltas := o.store.Recompute(positions)

	if o.broadcaster != nil {
		o.broadcaster.Broadcast(deltas)
	}
	if o.recorder != nil {
		o.recorder.SetStandCounts(o.store.Count(), o.store.OccupiedCount())
		o.recorder.SetPositions(len(positions), o.store.UpdatedAt())
	}
	if len(deltas) > 0 {
		o.publish(ctx)
	}
	o.observe(metrics.ResultUpdated, start)

	o.logger.Debug("tick completed",
		"positions", len(positions),
		"deltas", len(deltas),
		"occupied", o.store.OccupiedCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Run initializes, retrying every poll interval until the layout loads, and
// then ticks on the poll interval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for o.Initialize(ctx) != nil {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	o.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	err := o.Tick(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		o.logger.Warn("position feed unavailable", "error", err, "status_code", fetchErr.StatusCode)
		return
	}
	o.logger.Error("tick failed", "error", err)
}

func (o *Orchestrator) publish(ctx context.Context) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, o.store.Snapshot()); err != nil {
		o.logger.Warn("failed to publish stand snapshot", "error", err)
	}
}

func (o *Orchestrator) observe(result string, start time.Time) {
	if o.recorder != nil {
		o.recorder.ObserveTick(result, time.Since(start))
	}
}

func (o *Orchestrator) Lookup(name string) (*domain.Stand, bool) {
	return o.store.Get(name)
}

// Stands returns every stand in layout order.
func (o *Orchestrator) Stands() []*domain.Stand {
	return o.store.Snapshot()
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) IsReady() bool {
	return o.State() == StateReady
}
