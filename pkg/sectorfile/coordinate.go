package sectorfile

import (
	"fmt"
	"math"
	"strings"

	"standwatch/internal/domain"
)

// Axis selects which hemisphere letters a coordinate token may carry.
type Axis int

const (
	AxisLatitude Axis = iota
	AxisLongitude
)

func (a Axis) String() string {
	if a == AxisLatitude {
		return "latitude"
	}
	return "longitude"
}

// Decode parses a single sexagesimal token such as "N059.24.53.647" into
// signed decimal degrees. S and W are negative.
func Decode(token string) (float64, error) {
	v, _, err := decode(token)
	return v, err
}

// DecodeLatitude is Decode restricted to N/S tokens within ±90°.
func DecodeLatitude(token string) (float64, error) {
	return decodeAxis(token, AxisLatitude)
}

// DecodeLongitude is Decode restricted to E/W tokens within ±180°.
func DecodeLongitude(token string) (float64, error) {
	return decodeAxis(token, AxisLongitude)
}

func decodeAxis(token string, want Axis) (float64, error) {
	v, axis, err := decode(token)
	if err != nil {
		return 0, err
	}
	if axis != want {
		return 0, &domain.FormatError{Input: token, Reason: "expected " + want.String()}
	}
	limit := 90.0
	if want == AxisLongitude {
		limit = 180
	}
	if math.Abs(v) > limit {
		return 0, &domain.FormatError{Input: token, Reason: want.String() + " out of range"}
	}
	return v, nil
}

func decode(token string) (float64, Axis, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, 0, &domain.FormatError{Input: token, Reason: "empty coordinate"}
	}

	var axis Axis
	negate := false
	switch token[0] {
	case 'N':
		axis = AxisLatitude
	case 'S':
		axis, negate = AxisLatitude, true
	case 'E':
		axis = AxisLongitude
	case 'W':
		axis, negate = AxisLongitude, true
	default:
		return 0, 0, &domain.FormatError{Input: token, Reason: "missing hemisphere letter"}
	}

	parts := strings.Split(token[1:], ".")
	if len(parts) != 4 {
		return 0, 0, &domain.FormatError{Input: token, Reason: "expected four dot-separated parts"}
	}

	var fields [4]float64
	for i, p := range parts {
		n, ok := parseDigits(p)
		if !ok {
			return 0, 0, &domain.FormatError{Input: token, Reason: fmt.Sprintf("non-numeric part %q", p)}
		}
		fields[i] = float64(n)
	}

	v := fields[0] + fields[1]/60 + (fields[2]+fields[3]/1000)/3600
	if negate {
		v = -v
	}
	return v, axis, nil
}

// parseDigits accepts only unsigned decimal digits; strconv would let signs
// and exponents through.
func parseDigits(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

// Encode formats decimal degrees as a sexagesimal token, e.g.
// Encode(59.414902, AxisLatitude) == "N059.24.53.647".
func Encode(v float64, axis Axis) string {
	hemi := "N"
	switch {
	case axis == AxisLatitude && v < 0:
		hemi = "S"
	case axis == AxisLongitude && v < 0:
		hemi = "W"
	case axis == AxisLongitude:
		hemi = "E"
	}

	// Work in whole milliseconds of arc so carries propagate cleanly.
	ms := int64(math.Round(math.Abs(v) * 3600000))
	deg := ms / 3600000
	ms -= deg * 3600000
	min := ms / 60000
	ms -= min * 60000
	sec := ms / 1000
	ms -= sec * 1000

	return fmt.Sprintf("%s%03d.%02d.%02d.%03d", hemi, deg, min, sec, ms)
}

// EncodeCoordinate returns the "lat:lon" prefix of a layout line.
func EncodeCoordinate(c domain.Coordinate) string {
	return Encode(c.Latitude(), AxisLatitude) + ":" + Encode(c.Longitude(), AxisLongitude)
}
