// Package transfer fetches TSV batch files from HTTP endpoints or the local
// filesystem and transparently decompresses gzip payloads.
package transfer

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/openwebindex/platform/pkg/errors"
	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/resilience"
)

// Fetcher retrieves batch files. HTTP downloads go through the shared retry
// policy; local paths are opened directly.
type Fetcher struct {
	client *http.Client
	retry  resilience.RetryConfig
	log    *slog.Logger
}

// NewFetcher returns a Fetcher with a bounded-timeout HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 5 * time.Minute},
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
		},
		log: logger.WithComponent("transfer"),
	}
}

// Fetch opens location for reading. Locations starting with http:// or
// https:// are downloaded; anything else is treated as a local path. A
// location ending in .gz is decompressed on the fly. The caller must close
// the returned reader.
func (f *Fetcher) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	var raw io.ReadCloser
	var err error
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		raw, err = f.download(ctx, location)
	} else {
		raw, err = f.openLocal(location)
	}
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(location, ".gz") {
		return raw, nil
	}
	gz, err := gzip.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, apperrors.Newf(apperrors.ErrDecompress, "opening gzip stream for %s: %v", location, err)
	}
	return &gzipReadCloser{gz: gz, raw: raw}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := resilience.Retry(ctx, "batch-download", f.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return apperrors.Newf(apperrors.ErrDownload, "GET %s returned %d", url, resp.StatusCode)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrDownload, "downloading %s: %v", url, err)
	}
	f.log.Debug("batch downloaded", "url", url)
	return body, nil
}

func (f *Fetcher) openLocal(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrDownload, "opening batch file %s: %v", path, err)
	}
	return file, nil
}

// gzipReadCloser closes both the gzip stream and the underlying source.
type gzipReadCloser struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	rawErr := g.raw.Close()
	if gzErr != nil {
		return gzErr
	}
	return rawErr
}
