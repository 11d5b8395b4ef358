package vatsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"standwatch/internal/domain"
)

const DefaultDataURL = "https://data.vatsim.net/v3/vatsim-data.json"

// ErrNotModified is returned when the feed's change marker matches the one
// the caller already processed.
var ErrNotModified = errors.New("vatsim data not modified")

type Client struct {
	dataURL    string
	httpClient *http.Client
}

func New(dataURL string, timeout time.Duration) *Client {
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	return &Client{
		dataURL: dataURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// DataFeed is the subset of the v3 data file the stand model needs.
type DataFeed struct {
	LastModified string  `json:"-"`
	General      General `json:"general"`
	Pilots       []Pilot `json:"pilots"`
}

type General struct {
	UpdateTimestamp string `json:"update_timestamp"`
}

// Pilot is a raw pilot record. Latitude and Longitude are pointers because
// the feed may omit them.
type Pilot struct {
	CID         int         `json:"cid"`
	Callsign    string      `json:"callsign"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
	Altitude    int         `json:"altitude"`
	Groundspeed float64     `json:"groundspeed"`
	Heading     int         `json:"heading"`
	FlightPlan  *FlightPlan `json:"flight_plan"`
	LastUpdated string      `json:"last_updated"`
}

type FlightPlan struct {
	Aircraft      string `json:"aircraft"`
	AircraftShort string `json:"aircraft_short"`
	Departure     string `json:"departure"`
	Arrival       string `json:"arrival"`
}

// AircraftType returns the short ICAO type from the flight plan, if filed.
func (p Pilot) AircraftType() string {
	if p.FlightPlan == nil {
		return ""
	}
	if p.FlightPlan.AircraftShort != "" {
		return p.FlightPlan.AircraftShort
	}
	return p.FlightPlan.Aircraft
}

// Fetch downloads the data file. since is the change marker of the last
// processed snapshot; when the server reports the same marker the body is
// not decoded and ErrNotModified is returned.
func (c *Client) Fetch(ctx context.Context, since string) (*DataFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "standwatch/1.0")
	if _, err := http.ParseTime(since); err == nil {
		req.Header.Set("If-Modified-Since", since)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Source: c.dataURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{Source: c.dataURL, StatusCode: resp.StatusCode}
	}

	marker := resp.Header.Get("Last-Modified")
	if marker != "" && marker == since {
		return nil, ErrNotModified
	}

	var feed DataFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, &domain.FormatError{Input: c.dataURL, Reason: "decoding response", Err: err}
	}
	if feed.Pilots == nil {
		return nil, &domain.FormatError{Input: c.dataURL, Reason: "response has no pilots array"}
	}

	if marker == "" {
		marker = feed.General.UpdateTimestamp
		if marker != "" && marker == since {
			return nil, ErrNotModified
		}
	}
	feed.LastModified = marker

	return &feed, nil
}
