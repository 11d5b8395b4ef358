package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tick results.
const (
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultError     = "error"
)

// Collector bundles the Prometheus metrics for refresh cycles and stand
// occupancy.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks             *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	FilteredPositions *prometheus.CounterVec
	RateLimited       prometheus.Counter

	Stands         prometheus.Gauge
	OccupiedStands prometheus.Gauge
	Positions      prometheus.Gauge
	LastUpdate     prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "standwatch_ticks_total",
		Help: "Refresh ticks, labeled by result (updated, unchanged, error).",
	}, []string{"result"}), "standwatch_ticks_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "standwatch_tick_duration_seconds",
		Help:    "Duration of a refresh tick including the feed fetch.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "standwatch_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	filtered, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "standwatch_filtered_positions_total",
		Help: "Position reports rejected by the eligibility filter, labeled by reason.",
	}, []string{"reason"}), "standwatch_filtered_positions_total")
	if err != nil {
		return nil, err
	}

	rateLimited, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "standwatch_rate_limited_requests_total",
		Help: "HTTP requests rejected by the rate limiter.",
	}), "standwatch_rate_limited_requests_total")
	if err != nil {
		return nil, err
	}

	stands, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "standwatch_stands",
		Help: "Number of stands in the loaded layout.",
	}), "standwatch_stands")
	if err != nil {
		return nil, err
	}
	occupied, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "standwatch_occupied_stands",
		Help: "Number of stands currently occupied.",
	}), "standwatch_occupied_stands")
	if err != nil {
		return nil, err
	}
	positions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "standwatch_positions",
		Help: "Stationary positions in the last processed snapshot.",
	}), "standwatch_positions")
	if err != nil {
		return nil, err
	}
	lastUpdate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "standwatch_last_update_timestamp_seconds",
		Help: "Unix time of the last occupancy recomputation.",
	}), "standwatch_last_update_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Ticks:             ticks,
		TickDuration:      duration,
		FilteredPositions: filtered,
		RateLimited:       rateLimited,
		Stands:            stands,
		OccupiedStands:    occupied,
		Positions:         positions,
		LastUpdate:        lastUpdate,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveTick(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(result).Inc()
	c.TickDuration.Observe(d.Seconds())
}

func (c *Collector) SetStandCounts(total, occupied int) {
	if c == nil {
		return
	}
	c.Stands.Set(float64(total))
	c.OccupiedStands.Set(float64(occupied))
}

func (c *Collector) SetPositions(n int, at time.Time) {
	if c == nil {
		return
	}
	c.Positions.Set(float64(n))
	c.LastUpdate.Set(float64(at.Unix()))
}

func (c *Collector) IncFiltered(reason string) {
	if c == nil {
		return
	}
	c.FilteredPositions.WithLabelValues(reason).Inc()
}

func (c *Collector) IncRateLimited() {
	if c == nil {
		return
	}
	c.RateLimited.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
