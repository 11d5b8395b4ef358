package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"standwatch/internal/domain"
	"standwatch/pkg/vatsim"
)

type Config struct {
	LogLevel        slog.Level
	LogFile         string
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	LayoutSource    string
	LayoutStopAtEnd bool

	View              domain.ViewParams
	Thresholds        domain.Thresholds
	CallsignDelimiter string

	VATSIMDataURL string
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	TileZoomLevel int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string

	MetricsEnabled bool
}

func Load() (*Config, error) {
	layoutSource := os.Getenv("LAYOUT_SOURCE")
	if layoutSource == "" {
		return nil, fmt.Errorf("LAYOUT_SOURCE environment variable is required")
	}

	center, err := parseCenter(os.Getenv("VIEW_CENTER"))
	if err != nil {
		return nil, fmt.Errorf("VIEW_CENTER: %w", err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		LogFile:         getEnv("LOG_FILE", ""),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		LayoutSource:    layoutSource,
		LayoutStopAtEnd: getBoolEnv("LAYOUT_STOP_AT_END", os.Getenv("APP_ENV") == "development"),

		View: domain.ViewParams{
			Center: center,
			Zoom:   getFloatEnv("VIEW_ZOOM", 15),
		},
		Thresholds: domain.Thresholds{
			MaxGroundSpeedKts:   getFloatEnv("MAX_GROUND_SPEED_KTS", 1),
			MaxCenterDistanceKm: getFloatEnv("MAX_CENTER_DISTANCE_KM", 10),
			OccupancyRadiusM:    getFloatEnv("OCCUPANCY_RADIUS_M", 40),
		},
		CallsignDelimiter: getEnv("CALLSIGN_DELIMITER", "_"),

		VATSIMDataURL: getEnv("VATSIM_DATA_URL", vatsim.DefaultDataURL),
		PollInterval:  getDurationEnv("POLL_INTERVAL", 15*time.Second),
		FetchTimeout:  getDurationEnv("FETCH_TIMEOUT", 10*time.Second),
		TileZoomLevel: getIntEnv("TILE_ZOOM_LEVEL", 16),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", time.Hour),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if !finite(c.Thresholds.MaxGroundSpeedKts) || c.Thresholds.MaxGroundSpeedKts < 0 {
		errs = append(errs, errors.New("MAX_GROUND_SPEED_KTS must be a finite, non-negative number"))
	}
	if !finite(c.Thresholds.MaxCenterDistanceKm) || c.Thresholds.MaxCenterDistanceKm <= 0 {
		errs = append(errs, errors.New("MAX_CENTER_DISTANCE_KM must be a finite, positive number"))
	}
	if !finite(c.Thresholds.OccupancyRadiusM) || c.Thresholds.OccupancyRadiusM <= 0 {
		errs = append(errs, errors.New("OCCUPANCY_RADIUS_M must be a finite, positive number"))
	}
	if !finite(c.View.Zoom) {
		errs = append(errs, errors.New("VIEW_ZOOM must be a finite number"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.TileZoomLevel < 0 || c.TileZoomLevel > 22 {
		errs = append(errs, errors.New("TILE_ZOOM_LEVEL must be between 0 and 22"))
	}
	if c.CallsignDelimiter == "" {
		errs = append(errs, errors.New("CALLSIGN_DELIMITER must not be empty"))
	}
	return errors.Join(errs...)
}

// finite rejects NaN and ±Inf, which pass every ordered comparison check.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseCenter parses "lon,lat" in decimal degrees.
func parseCenter(v string) (domain.Coordinate, error) {
	if v == "" {
		return domain.Coordinate{}, errors.New("required, expected lon,lat")
	}
	lonStr, latStr, ok := strings.Cut(v, ",")
	if !ok {
		return domain.Coordinate{}, fmt.Errorf("%q: expected lon,lat", v)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	c := domain.Coordinate{lon, lat}
	if !c.Valid() {
		return domain.Coordinate{}, fmt.Errorf("%q is out of range", v)
	}
	return c, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	switch strings.ToLower(os.Getenv(key)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	return result
}
