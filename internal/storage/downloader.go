package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"prism/internal/infra"
)

// Downloader fetches remote media into a local temp file.
type Downloader interface {
	Download(ctx context.Context, mediaURL string) (tempPath string, err error)
}

// HTTPDownloader streams media over HTTP into the store's temp area,
// retrying transport errors and 5xx responses.
type HTTPDownloader struct {
	store      *FileStore
	client     *http.Client
	maxRetries uint
	logger     infra.Logger
}

// NewHTTPDownloader builds a downloader writing into store.
func NewHTTPDownloader(store *FileStore, client *http.Client, maxRetries int, logger infra.Logger) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &HTTPDownloader{store: store, client: client, maxRetries: uint(maxRetries), logger: logger}
}

func (d *HTTPDownloader) Download(ctx context.Context, mediaURL string) (string, error) {
	parsed, err := url.Parse(mediaURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("storage: invalid media url %q", mediaURL)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, func() (string, error) {
		return d.fetchOnce(ctx, parsed.String())
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.maxRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			d.logger.Warn().Err(err).Str("url", mediaURL).Dur("retry_in", wait).Msg("storage: download retry")
		}),
	)
}

func (d *HTTPDownloader) fetchOnce(ctx context.Context, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("storage: build download request: %w", err))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("storage: download status %d", resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", backoff.Permanent(statusErr)
		}
		return "", statusErr
	}

	f, err := d.store.CreateTemp()
	if err != nil {
		return "", backoff.Permanent(err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("storage: write download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", backoff.Permanent(fmt.Errorf("storage: close download: %w", err))
	}
	return f.Name(), nil
}

// FixtureDownloader writes a small placeholder file instead of fetching.
// It backs simulation mode where render URLs are not reachable.
type FixtureDownloader struct {
	store *FileStore
}

// NewFixtureDownloader returns a downloader that never touches the network.
func NewFixtureDownloader(store *FileStore) *FixtureDownloader {
	return &FixtureDownloader{store: store}
}

func (d *FixtureDownloader) Download(ctx context.Context, mediaURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if mediaURL == "" {
		return "", errors.New("storage: empty media url")
	}
	f, err := d.store.CreateTemp()
	if err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(f, "simulated render of %s\n", mediaURL); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

var (
	_ Downloader = (*HTTPDownloader)(nil)
	_ Downloader = (*FixtureDownloader)(nil)
)
