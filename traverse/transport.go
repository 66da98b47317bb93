package traverse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tailbits/hypermedia/codec"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 10 << 20

// Transport retrieves the document behind a URL.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) ([]byte, error)

func (f TransportFunc) Get(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// DefaultAccept asks for either supported format, preferring HAL.
var DefaultAccept = codec.HALMediaType + ", " + codec.JSONAPIMediaType + ";q=0.9"

// HTTPTransport is a Transport over a plain http.Client. It never retries.
type HTTPTransport struct {
	Client *http.Client
	Accept string
}

func NewHTTPTransport(accept ...string) *HTTPTransport {
	t := &HTTPTransport{Client: http.DefaultClient, Accept: DefaultAccept}
	if len(accept) > 0 {
		t.Accept = strings.Join(accept, ", ")
	}
	return t
}

func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequest: %w", err)
	}
	req.Header.Set("Accept", t.Accept)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return readBody(url, resp)
}

func readBody(url string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// RetryTransport retries failed requests with backoff. Retrying is a
// transport policy: the traversal client itself never retries.
type RetryTransport struct {
	client *retryablehttp.Client
	accept string
}

type RetryOption func(*retryablehttp.Client)

func WithRetryMax(n int) RetryOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

func WithRetryWait(minWait, maxWait time.Duration) RetryOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = minWait
		c.RetryWaitMax = maxWait
	}
}

func WithRetryLogger(log *slog.Logger) RetryOption {
	return func(c *retryablehttp.Client) {
		if log != nil {
			c.Logger = log
		}
	}
}

func WithHTTPClient(hc *http.Client) RetryOption {
	return func(c *retryablehttp.Client) {
		c.HTTPClient = hc
	}
}

func NewRetryTransport(accept string, opts ...RetryOption) *RetryTransport {
	client := retryablehttp.NewClient()
	client.Logger = nil
	// Hand the last response back so non-2xx statuses surface as StatusError.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(client)
	}
	if accept == "" {
		accept = DefaultAccept
	}
	return &RetryTransport{client: client, accept: accept}
}

func (t *RetryTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("retryablehttp.NewRequest: %w", err)
	}
	req.Header.Set("Accept", t.accept)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	return readBody(url, resp)
}
