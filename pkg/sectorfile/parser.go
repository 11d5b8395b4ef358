package sectorfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"standwatch/internal/domain"
)

// EndSentinel terminates a truncated layout when Options.StopAtEnd is set.
const EndSentinel = "END"

// MaxLineBytes bounds a single layout line.
const MaxLineBytes = 64 * 1024

// Options tunes how a layout is parsed.
type Options struct {
	// StopAtEnd stops parsing at the first line that is exactly "END".
	StopAtEnd bool
}

// Layout maps stand names to stands and remembers the order in which names
// first appeared.
type Layout struct {
	order  []string
	stands map[string]domain.Stand
}

func newLayout() *Layout {
	return &Layout{stands: make(map[string]domain.Stand)}
}

func (l *Layout) set(name string, coord domain.Coordinate) {
	if _, exists := l.stands[name]; !exists {
		l.order = append(l.order, name)
	}
	l.stands[name] = domain.Stand{Name: name, Coordinate: coord}
}

// Get returns the stand named name.
func (l *Layout) Get(name string) (domain.Stand, bool) {
	s, ok := l.stands[name]
	return s, ok
}

// Len is the number of distinct stand names.
func (l *Layout) Len() int {
	return len(l.order)
}

// Stands returns the stands in layout order.
func (l *Layout) Stands() []domain.Stand {
	result := make([]domain.Stand, 0, len(l.order))
	for _, name := range l.order {
		result = append(result, l.stands[name])
	}
	return result
}

// Parser turns layout text into a Layout.
type Parser struct {
	opts   Options
	logger *slog.Logger
}

func NewParser(opts Options, logger *slog.Logger) *Parser {
	return &Parser{
		opts:   opts,
		logger: logger.With("component", "layout_parser"),
	}
}

// Parse reads a whole layout. Any malformed line aborts the parse and no
// layout is returned.
func (p *Parser) Parse(r io.Reader) (*Layout, error) {
	start := time.Now()
	layout := newLayout()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineBytes)
	lineNo := 0
	skipped := 0
	truncated := false

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, ";") {
			skipped++
			continue
		}

		if p.opts.StopAtEnd && line == EndSentinel {
			truncated = true
			break
		}

		label, coord, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		layout.set(label, coord)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, &domain.FormatError{
				Reason: fmt.Sprintf("line longer than %d bytes", MaxLineBytes),
				Err:    err,
			})
		}
		return nil, fmt.Errorf("read layout: %w", err)
	}

	p.logger.Info("parsed layout",
		"stands", layout.Len(),
		"lines", lineNo,
		"skipped", skipped,
		"truncated", truncated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return layout, nil
}

// ParseLine parses "N059.24.53.647:E024.48.02.394:M1" into the label and a
// (longitude, latitude) coordinate.
func ParseLine(line string) (string, domain.Coordinate, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return "", domain.Coordinate{}, &domain.FormatError{Input: line, Reason: "expected lat:lon:label"}
	}

	label := strings.TrimSpace(parts[2])
	if label == "" {
		return "", domain.Coordinate{}, &domain.FormatError{Input: line, Reason: "empty stand label"}
	}

	lat, err := DecodeLatitude(parts[0])
	if err != nil {
		return "", domain.Coordinate{}, &domain.FormatError{Input: line, Reason: "invalid coordinates", Err: err}
	}
	lon, err := DecodeLongitude(parts[1])
	if err != nil {
		return "", domain.Coordinate{}, &domain.FormatError{Input: line, Reason: "invalid coordinates", Err: err}
	}

	return label, domain.Coordinate{lon, lat}, nil
}
