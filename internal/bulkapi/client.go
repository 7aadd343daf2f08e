package bulkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forcedotcom/sf-fx-bulk/pkg/metrics"
	"github.com/forcedotcom/sf-fx-bulk/pkg/requestid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIVersion = "53.0"
	userAgent         = "sf-fx-bulk/1.0"

	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// Connection describes how to reach the remote record store.
type Connection struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
}

type Option func(c *Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRateLimit bounds the number of requests per second. A non positive
// rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.Named("bulkapi")
		}
	}
}

// Client is the single funnel for every call made to the bulk api. It owns
// the transport, attaches credentials and turns failed responses into
// *APIError values. It holds no per-job state and is safe for concurrent use.
type Client struct {
	conn       Connection
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

func NewClient(conn Connection, opts ...Option) *Client {
	if conn.APIVersion == "" {
		conn.APIVersion = DefaultAPIVersion
	}
	conn.APIVersion = strings.TrimPrefix(conn.APIVersion, "v")

	c := &Client{
		conn:       conn,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request is a call relative to the jobs endpoint, e.g. "ingest/750xx/batches".
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Accept      string
	ContentType string
	Body        io.Reader
}

// Response pairs the response headers with a body that is still streaming.
// Callers must close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

func (c *Client) jobsURL(path string, query url.Values) string {
	u := fmt.Sprintf("%s/services/data/v%s/jobs/%s",
		strings.TrimSuffix(c.conn.InstanceURL, "/"),
		c.conn.APIVersion,
		strings.TrimPrefix(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Stream executes req and returns the open response for any 2xx status.
// Every other outcome is returned as an *APIError.
func (c *Client) Stream(ctx context.Context, req *Request) (*Response, error) {
	ctx, reqID := requestid.Ensure(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Classify(fmt.Errorf("rate limiter: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.jobsURL(req.Path, req.Query), req.Body)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.conn.AccessToken)
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set(requestid.Header, reqID)
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveRequest(req.Method, 0, time.Since(start))
		c.log.Debug("bulk api request failed",
			zap.String("request_id", reqID),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, Classify(fmt.Errorf("failed to call bulk api: %w", err))
	}
	metrics.ObserveRequest(req.Method, resp.StatusCode, time.Since(start))

	c.log.Debug("bulk api request completed",
		zap.String("request_id", reqID),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() {
			_ = resp.Body.Close()
		}()
		body, _ := io.ReadAll(resp.Body)
		return nil, responseError(resp.StatusCode, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Do executes req and decodes a JSON response body into out when out is not nil.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	resp, err := c.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if out == nil {
		// Drain body to enable connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Classify(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// DoJSON sends in as a JSON body and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req := &Request{Method: method, Path: path, Accept: ContentTypeJSON}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return Classify(fmt.Errorf("failed to marshal request: %w", err))
		}
		req.Body = strings.NewReader(string(body))
		req.ContentType = ContentTypeJSON
	}
	return c.Do(ctx, req, out)
}
