package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"standwatch/internal/domain"
	"standwatch/internal/geo"
	"standwatch/pkg/vatsim"
)

// Rejection reasons reported to the FilterRecorder.
const (
	ReasonMoving     = "moving"
	ReasonCallsign   = "callsign"
	ReasonNoPosition = "no_position"
	ReasonOutOfScope = "out_of_scope"
)

const DefaultDelimiter = "_"

// Source fetches raw position snapshots. since is the last processed change
// marker; an unchanged source returns vatsim.ErrNotModified.
type Source interface {
	Fetch(ctx context.Context, since string) (*vatsim.DataFeed, error)
}

type FilterRecorder interface {
	IncFiltered(reason string)
}

type Options struct {
	Thresholds domain.Thresholds
	View       domain.ViewParams
	// Delimiter marks multi-segment callsigns (observers, ATC) that are never
	// parked aircraft.
	Delimiter string
}

// Feed turns the live data source into eligible stationary positions and
// remembers which snapshot it last processed.
type Feed struct {
	source   Source
	opts     Options
	recorder FilterRecorder
	logger   *slog.Logger

	lastMarker string
}

func New(source Source, opts Options, logger *slog.Logger) *Feed {
	if opts.Delimiter == "" {
		opts.Delimiter = DefaultDelimiter
	}
	return &Feed{
		source: source,
		opts:   opts,
		logger: logger.With("component", "position_feed"),
	}
}

func (f *Feed) SetRecorder(r FilterRecorder) {
	f.recorder = r
}

// Refresh fetches the source. changed is false when the change marker has not
// moved; positions is then nil and the caller keeps its previous snapshot.
func (f *Feed) Refresh(ctx context.Context) ([]domain.AircraftPosition, bool, error) {
	data, err := f.source.Fetch(ctx, f.lastMarker)
	if errors.Is(err, vatsim.ErrNotModified) {
		f.logger.Debug("feed unchanged", "marker", f.lastMarker)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	positions := make([]domain.AircraftPosition, 0, len(data.Pilots))
	rejected := 0
	for _, p := range data.Pilots {
		pos, reason, ok := f.eligible(p)
		if !ok {
			rejected++
			if f.recorder != nil {
				f.recorder.IncFiltered(reason)
			}
			continue
		}
		positions = append(positions, pos)
	}

	// An empty marker cannot short-circuit anything, so every such fetch is
	// treated as new data.
	f.lastMarker = data.LastModified

	f.logger.Debug("feed refreshed",
		"marker", data.LastModified,
		"pilots", len(data.Pilots),
		"eligible", len(positions),
		"rejected", rejected,
	)

	return positions, true, nil
}

// Marker returns the change marker of the last processed snapshot.
func (f *Feed) Marker() string {
	return f.lastMarker
}

func (f *Feed) eligible(p vatsim.Pilot) (domain.AircraftPosition, string, bool) {
	if p.Groundspeed > f.opts.Thresholds.MaxGroundSpeedKts {
		return domain.AircraftPosition{}, ReasonMoving, false
	}
	if strings.Contains(p.Callsign, f.opts.Delimiter) {
		return domain.AircraftPosition{}, ReasonCallsign, false
	}
	if p.Latitude == nil || p.Longitude == nil {
		return domain.AircraftPosition{}, ReasonNoPosition, false
	}

	coord := domain.Coordinate{*p.Longitude, *p.Latitude}
	if geo.DistanceKm(coord, f.opts.View.Center) > f.opts.Thresholds.MaxCenterDistanceKm {
		return domain.AircraftPosition{}, ReasonOutOfScope, false
	}

	return domain.AircraftPosition{
		Callsign:     p.Callsign,
		Coordinate:   coord,
		GroundSpeed:  p.Groundspeed,
		AircraftType: p.AircraftType(),
	}, "", true
}
