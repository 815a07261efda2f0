package slam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrDatasetNotFound is returned when the server has no dataset at the URL
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrDatasetTooLarge is returned when a download exceeds the size limit
	ErrDatasetTooLarge = errors.New("dataset too large")
)

const (
	// DefaultFetchTimeout bounds a single download attempt. Long CSAIL runs
	// are tens of MB of JSON.
	DefaultFetchTimeout = 2 * time.Minute

	// DefaultMaxRetries is the default number of attempts
	DefaultMaxRetries = 4

	// DefaultMaxDatasetBytes caps the decompressed size of a download
	DefaultMaxDatasetBytes = 256 << 20

	defaultBaseBackoff = time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// FetchOption configures FetchDataset
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	maxBytes    int64
	client      *http.Client
}

// WithTimeout sets the timeout of each attempt
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets the maximum number of attempts
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithBaseBackoff sets the delay before the second attempt; later attempts
// double it up to the maximum backoff
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.baseBackoff = d }
}

// WithMaxBackoff caps the delay between attempts, including delays asked
// for by a Retry-After header
func WithMaxBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.maxBackoff = d }
}

// WithMaxBytes caps the decompressed dataset size
func WithMaxBytes(n int64) FetchOption {
	return func(c *fetchConfig) { c.maxBytes = n }
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// fetchError carries whether an attempt is worth repeating and how long the
// server asked us to wait
type fetchError struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

// FetchDataset downloads a recorded run. Plain and gzip compressed JSON are
// accepted. Network errors, 5xx, 408 and 429 responses are retried with
// exponential backoff; other client errors and malformed datasets are not.
func FetchDataset(url string, opts ...FetchOption) (*Dataset, error) {
	return FetchDatasetWithContext(context.Background(), url, opts...)
}

// FetchDatasetWithContext is FetchDataset with cancellation
func FetchDatasetWithContext(ctx context.Context, url string, opts ...FetchOption) (*Dataset, error) {
	if url == "" {
		return nil, errors.New("fetch dataset: URL is empty")
	}

	cfg := fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		maxBytes:    DefaultMaxDatasetBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.maxRetries = max(cfg.maxRetries, 1)
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	backoff := cfg.baseBackoff
	var last *fetchError
	for attempt := 1; attempt <= cfg.maxRetries; attempt++ {
		if last != nil {
			wait := min(max(backoff, last.retryAfter), cfg.maxBackoff)
			backoff *= 2
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch dataset: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		d, err := fetchOnce(ctx, client, url, cfg.maxBytes)
		if err == nil {
			if attempt > 1 {
				Logf("[dataset] fetched %s on attempt %d", url, attempt)
			}
			return d, nil
		}
		var fe *fetchError
		if !errors.As(err, &fe) || !fe.retryable {
			return nil, fmt.Errorf("fetch dataset: %w", err)
		}
		last = fe
		Logf("[dataset] attempt %d/%d failed: %v", attempt, cfg.maxRetries, err)
	}
	return nil, fmt.Errorf("fetch dataset: all %d attempts failed: %w", cfg.maxRetries, last)
}

func fetchOnce(ctx context.Context, client *http.Client, url string, maxBytes int64) (*Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/gzip")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("HTTP GET %s: %w", url, err), retryable: ctx.Err() == nil}
	}
	defer func() { _ = resp.Body.Close() }()

	switch code := resp.StatusCode; {
	case code == http.StatusOK:
	case code == http.StatusNotFound || code == http.StatusGone:
		return nil, fmt.Errorf("HTTP GET %s: %w (status %d)", url, ErrDatasetNotFound, code)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return nil, &fetchError{
			err:        fmt.Errorf("HTTP GET %s: status %d", url, code),
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, code)
	}

	body, err := readLimited(resp.Body, maxBytes)
	if errors.Is(err, ErrDatasetTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, &fetchError{err: fmt.Errorf("reading %s: %w", url, err), retryable: true}
	}

	compressed := isGzip(body) || path.Ext(req.URL.Path) == ".gz" ||
		strings.Contains(resp.Header.Get("Content-Type"), "gzip")
	if compressed {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream from %s: %w", url, err)
		}
		defer func() { _ = zr.Close() }()
		if body, err = readLimited(zr, maxBytes); err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", url, err)
		}
	}
	return ParseDataset(bytes.NewReader(body))
}

// readLimited reads all of r, failing with ErrDatasetTooLarge instead of
// silently truncating past maxBytes
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDatasetTooLarge, maxBytes)
	}
	return data, nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// parseRetryAfter reads the delay-seconds form of Retry-After; HTTP dates
// are ignored
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
