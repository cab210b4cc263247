package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

// Client fetches chunks from their owners' Servers.
// Transport errors and 5xx responses are retried by the underlying retryablehttp client.
type Client struct {
	dir Directory
	rc  *retryablehttp.Client
}

var _ hlt.Fetcher = &Client{}

type Option func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries for each fetch.
func WithMaxRetries(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait sets the minimum and maximum wait between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

// WithLogger sets the logger for retry attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	}
}

// WithTransport replaces the default pooled transport.
func WithTransport(t http.RoundTripper) Option {
	return func(c *retryablehttp.Client) {
		c.HTTPClient.Transport = t
	}
}

// NewClient produces a Client that finds peers in dir.
func NewClient(dir Directory, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("subsystem", "peer")})
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{dir: dir, rc: rc}
}

// Fetch implements hlt.Fetcher.
func (c *Client) Fetch(ctx context.Context, ref hlt.Ref, owner hlt.PeerID) (hlt.Blob, error) {
	blob, err := c.fetch(ctx, ref, owner)
	switch {
	case err == nil:
		fetched.WithLabelValues("ok").Inc()
	case errors.Is(err, hlt.ErrTimeout):
		fetched.WithLabelValues("timeout").Inc()
	case errors.Is(err, hlt.ErrNotFound):
		fetched.WithLabelValues("notfound").Inc()
	default:
		fetched.WithLabelValues("error").Inc()
	}
	return blob, err
}

func (c *Client) fetch(ctx context.Context, ref hlt.Ref, owner hlt.PeerID) (hlt.Blob, error) {
	base, ok := c.dir.Lookup(owner)
	if !ok {
		return nil, errors.Wrapf(hlt.ErrNotFound, "unknown peer %s", owner)
	}
	u := strings.TrimSuffix(base, "/") + ChunkPath + url.PathEscape(ref.Identifier())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", u)
	}
	resp, err := c.rc.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.Wrapf(hlt.ErrTimeout, "fetching %s from %s", ref, owner)
		}
		return nil, errors.Wrapf(err, "fetching %s from %s", ref, owner)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// ok
	case http.StatusNotFound:
		return nil, errors.Wrapf(hlt.ErrNotFound, "peer %s does not have %s", owner, ref)
	default:
		return nil, fmt.Errorf("fetching %s from %s: status %d", ref, owner, resp.StatusCode)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, errors.Wrapf(hlt.ErrTimeout, "reading %s from %s", ref, owner)
		}
		return nil, errors.Wrapf(err, "reading %s from %s", ref, owner)
	}
	return blob, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// leveledSlog adapts slog to retryablehttp.LeveledLogger.
// Errors are logged as warnings since the client retries them.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, keysAndValues...)
}
