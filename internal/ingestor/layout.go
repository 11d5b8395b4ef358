package ingestor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"standwatch/internal/domain"
	"standwatch/pkg/sectorfile"
)

// LayoutLoader downloads and parses the stand layout.
type LayoutLoader struct {
	downloader *sectorfile.Downloader
	parser     *sectorfile.Parser
	logger     *slog.Logger
}

func NewLayoutLoader(source string, timeout time.Duration, opts sectorfile.Options, logger *slog.Logger) *LayoutLoader {
	return &LayoutLoader{
		downloader: sectorfile.NewDownloader(source, timeout, logger),
		parser:     sectorfile.NewParser(opts, logger),
		logger:     logger.With("component", "layout_loader"),
	}
}

// Name is the layout name derived from the source file name.
func (l *LayoutLoader) Name() string {
	return l.downloader.Name()
}

func (l *LayoutLoader) Load(ctx context.Context) ([]domain.Stand, error) {
	l.logger.Info("loading layout", "source", l.downloader.Source())
	start := time.Now()

	data, err := l.downloader.Download(ctx)
	if err != nil {
		return nil, fmt.Errorf("download layout: %w", err)
	}
	downloadDuration := time.Since(start)

	parseStart := time.Now()
	layout, err := l.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", l.Name(), err)
	}

	l.logger.Info("layout loaded",
		"name", l.Name(),
		"stands", layout.Len(),
		"sha256", fingerprint(data),
		"download_duration", downloadDuration,
		"parse_duration", time.Since(parseStart),
	)

	return layout.Stands(), nil
}

func fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
