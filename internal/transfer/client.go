// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/upkit/upkit/internal/logging"
)

const (
	// DefaultTimeout bounds the version fetch and any stall during a download.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryMax is how many times a transient failure is retried before
	// the response body starts streaming.
	DefaultRetryMax = 2

	// maxTextBytes caps text resources (version file, change-log).
	maxTextBytes = 1 << 20

	// copyBufferSize is the chunk size used while streaming to disk.
	copyBufferSize = 32 << 10

	// partSuffix marks an incomplete download on disk.
	partSuffix = ".part"
)

type (
	// Clock supplies wall-clock time to the progress reporter.
	Clock interface {
		Now() time.Time
	}

	systemClock struct{}

	// Client performs the HTTP transfers of an update flow.
	Client struct {
		http      *retryablehttp.Client
		timeout   time.Duration
		userAgent string
		clock     Clock
		logger    *log.Logger
	}

	// Option configures a Client during construction.
	Option func(*Client)

	// leveledLogger adapts a charmbracelet logger to retryablehttp.LeveledLogger.
	leveledLogger struct {
		l *log.Logger
	}
)

func (systemClock) Now() time.Time { return time.Now() }

func (l leveledLogger) Error(msg string, kv ...any) { l.l.Error(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.l.Debug(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.l.Debug(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.l.Warn(msg, kv...) }

// WithTimeout sets the network timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryMax sets how many times transient failures are retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.http.RetryMax = n
		}
	}
}

// WithRetryWait bounds the backoff between retries (tests use tiny values).
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithHTTPClient replaces the underlying transport client, useful for proxies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithClock overrides the time source used for throughput computation.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger. Retry attempts are logged at debug level.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = logging.Component(l, "transfer")
	}
}

// NewClient creates a Client with a pooled transport, DefaultTimeout and
// DefaultRetryMax.
func NewClient(opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = DefaultRetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second

	c := &Client{
		http:      rc,
		timeout:   DefaultTimeout,
		userAgent: "upkit/dev",
		clock:     systemClock{},
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Logger = leveledLogger{l: c.logger}
	return c
}

// Timeout returns the effective network timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// FetchText downloads a small text resource and returns its body with
// surrounding whitespace removed. The whole request is bounded by the
// client timeout.
func (c *Client) FetchText(ctx context.Context, rawURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(reqCtx, rawURL)
	if err != nil {
		return "", c.classify(ctx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{URL: redactURL(rawURL), StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBytes))
	if err != nil {
		return "", c.classify(ctx, rawURL, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// Download streams rawURL into dest, invoking onProgress (which may be nil) on
// the calling goroutine. Parent directories of dest are created as needed and
// an existing dest is replaced only when the transfer completes.
//
// The client timeout acts as a stall timeout here: the transfer fails with
// ErrNetwork when no bytes arrive for that long, however long the whole
// download takes.
func (c *Client) Download(ctx context.Context, rawURL, dest string, onProgress ProgressFunc) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stall := time.AfterFunc(c.timeout, func() { cancel(errStalled) })
	defer stall.Stop()

	c.logger.Debug("starting download", "url", redactURL(rawURL), "dest", dest)

	resp, err := c.get(streamCtx, rawURL)
	if err != nil {
		return c.classify(ctx, rawURL, causeOf(streamCtx, err))
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{URL: redactURL(rawURL), StatusCode: resp.StatusCode}
	}

	partPath := dest + partSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", partPath, err)
	}
	// The partial file never survives a failed or cancelled transfer.
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(partPath)
		}
	}()

	reporter := newProgressReporter(c.clock, resp.ContentLength, onProgress)
	reporter.start()

	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			stall.Reset(c.timeout)
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("writing %s: %w", partPath, writeErr)
			}
			reporter.add(n)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return c.classify(ctx, rawURL, causeOf(streamCtx, readErr))
		}
	}

	if resp.ContentLength > 0 && reporter.received != resp.ContentLength {
		return &NetworkError{
			URL: redactURL(rawURL),
			Err: fmt.Errorf("received %d of %d bytes: %w", reporter.received, resp.ContentLength, io.ErrUnexpectedEOF),
		}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", partPath, err)
	}
	if err := os.Rename(partPath, dest); err != nil {
		return fmt.Errorf("moving download into place: %w", err)
	}

	reporter.finish()
	c.logger.Info("download complete", "dest", dest, "bytes", reporter.received)

	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	return c.http.Do(req)
}

// classify maps a transfer failure to ErrCancelled when the caller's context
// ended, and to a NetworkError otherwise (including our own timeouts).
func (c *Client) classify(parent context.Context, rawURL string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(parent))
	}
	return &NetworkError{URL: redactURL(rawURL), Err: err}
}

// causeOf prefers the stall cause over the generic "context canceled".
func causeOf(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errStalled) {
		return cause
	}
	return err
}
