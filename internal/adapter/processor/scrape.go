package processor

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Scraper fetches documents from hosts that reject non-browser clients.
type Scraper struct {
	client    *http.Client
	userAgent string
	backoff   time.Duration
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewScraper creates a scraper. A nil client uses http.DefaultClient; a
// positive timeout bounds each attempt, body included.
func NewScraper(client *http.Client, userAgent string, backoff, timeout time.Duration, logger *slog.Logger) *Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:    client,
		userAgent: userAgent,
		backoff:   backoff,
		timeout:   timeout,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// Fetch downloads rawURL to dst, trying up to attempts times with a fixed
// backoff in between. Raw bytes are written as received after decoding the
// transfer compression.
func (s *Scraper) Fetch(ctx context.Context, rawURL, dst string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = s.fetchOnce(ctx, rawURL, dst)
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("scrape attempt failed", "url", rawURL, "attempt", attempt, "of", attempts, "error", lastErr)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < attempts {
			if err := s.sleep(ctx, s.backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("fetch %s failed after %d attempts: %w", rawURL, attempts, lastErr)
}

func (s *Scraper) fetchOnce(ctx context.Context, rawURL, dst string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	s.browserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if n == 0 {
		os.Remove(tmp)
		return errors.New("empty response body")
	}
	return os.Rename(tmp, dst)
}

func (s *Scraper) browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Referer", req.URL.Scheme+"://"+req.URL.Host+"/")
}

// decodeBody undoes Content-Encoding. Setting Accept-Encoding by hand turns
// off net/http's transparent gzip, so every encoding is handled here.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		return &decompressReader{reader: r, closer: resp.Body}, nil
	case "deflate":
		return &decompressReader{reader: flate.NewReader(resp.Body), closer: resp.Body}, nil
	case "br":
		return &decompressReader{reader: brotli.NewReader(resp.Body), closer: resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) { return d.reader.Read(p) }

func (d *decompressReader) Close() error {
	if c, ok := d.reader.(io.Closer); ok {
		c.Close()
	}
	return d.closer.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
