package sectorfile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"standwatch/internal/domain"
)

const maxLayoutBytes = 16 << 20

// Downloader fetches the layout resource from an http(s) URL or a local path.
type Downloader struct {
	source string
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(source string, timeout time.Duration, logger *slog.Logger) *Downloader {
	return &Downloader{
		source: source,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "layout_downloader"),
	}
}

func (d *Downloader) Source() string {
	return d.source
}

// Name returns the layout file name without directories or extension,
// e.g. "EETN" for "https://example.org/stands/EETN.txt".
func (d *Downloader) Name() string {
	return LayoutName(d.source)
}

func LayoutName(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	base := path.Base(filepath.ToSlash(p))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

func (d *Downloader) Download(ctx context.Context) ([]byte, error) {
	start := time.Now()

	if !isRemote(d.source) {
		p := strings.TrimPrefix(d.source, "file://")
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, &domain.FetchError{Source: d.source, Err: err}
		}
		d.logger.Info("layout read from file",
			"path", p,
			"size_bytes", len(data),
		)
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.source, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "standwatch/1.0")

	d.logger.Debug("sending HTTP request",
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("failed to download layout",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &domain.FetchError{Source: d.source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("unexpected HTTP status",
			"status_code", resp.StatusCode,
			"status", resp.Status,
		)
		return nil, &domain.FetchError{Source: d.source, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLayoutBytes))
	if err != nil {
		return nil, &domain.FetchError{Source: d.source, Err: fmt.Errorf("read body: %w", err)}
	}

	d.logger.Info("layout download completed",
		"size_bytes", len(data),
		"total_duration_ms", time.Since(start).Milliseconds(),
	)

	return data, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
