package cache

import (
	"context"
	"log/slog"
	"time"

	"standwatch/internal/domain"
)

// Store is the subset of RedisCache the publisher writes through.
type Store interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	SetJSONCompressed(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Publisher mirrors the latest stand table into Redis so other services can
// read occupancy without calling the API.
type Publisher struct {
	cache  Store
	layout string
	ttl    time.Duration
	logger *slog.Logger

	onResult func(error)
}

func NewPublisher(cache Store, layout string, ttl time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		cache:  cache,
		layout: layout,
		ttl:    ttl,
		logger: logger.With("component", "snapshot_publisher", "layout", layout),
	}
}

// OnResult registers fn to be called with the outcome of every Publish.
func (p *Publisher) OnResult(fn func(error)) {
	p.onResult = fn
}

type StandSnapshot struct {
	Layout      string          `json:"layout"`
	Stands      []*domain.Stand `json:"stands"`
	Occupied    int             `json:"occupied"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (p *Publisher) Publish(ctx context.Context, stands []*domain.Stand) error {
	err := p.publish(ctx, stands)
	if p.onResult != nil {
		p.onResult(err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, stands []*domain.Stand) error {
	start := time.Now()

	occupied := make(map[string]string)
	for _, st := range stands {
		if st.Occupied {
			occupied[st.Name] = st.Callsign
		}
	}

	snapshot := StandSnapshot{
		Layout:      p.layout,
		Stands:      stands,
		Occupied:    len(occupied),
		GeneratedAt: time.Now(),
	}
	if err := p.cache.SetJSONCompressed(ctx, KeyStands(p.layout), snapshot, p.ttl); err != nil {
		return err
	}
	if err := p.cache.SetJSON(ctx, KeyOccupied(p.layout), occupied, p.ttl); err != nil {
		return err
	}

	p.logger.Debug("published stand snapshot",
		"stands", len(stands),
		"occupied", len(occupied),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
