// Package serpapi is the HTTP client for the SerpApi Google Trends
// endpoint: a thin fasthttp caller that types provider failures as
// transient or permanent, and a retrying fetcher that spends a bounded
// attempt budget on the transient ones.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Fixed request parameters for the interest-over-time endpoint.
const (
	engineGoogleTrends = "google_trends"
	dataTypeTimeseries = "TIMESERIES"
	userAgent          = "trendwatch/1.0"
)

const defaultTimeout = 15 * time.Second

// Config holds the provider connection settings.
type Config struct {
	// BaseURL is the search endpoint, e.g. https://serpapi.com/search.json.
	BaseURL string
	// APIKey authenticates every request.
	APIKey string
	// Geo is the two-letter region code applied to all queries.
	Geo string
	// Timeout bounds a single HTTP exchange. Retries are layered on top by
	// RetryingFetcher, not here.
	Timeout time.Duration
}

// Client issues one interest-over-time query per call and classifies
// failures. It holds no per-request state and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	geo     string
	timeout time.Duration
	http    *fasthttp.Client
	log     *zap.Logger
}

// NewClient builds a provider client from cfg.
func NewClient(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		geo:     cfg.Geo,
		timeout: timeout,
		http: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		log: log,
	}
}

// Search fetches the daily interest series for term over window and returns
// the raw payload. Failures come back as *TransientError or *PermanentError
// so the retry layer can decide what to do with them.
func (c *Client) Search(ctx context.Context, term string, window trends.FetchWindow) (trends.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL)
	args := req.URI().QueryArgs()
	args.Set("engine", engineGoogleTrends)
	args.Set("q", term)
	args.Set("geo", c.geo)
	args.Set("date", window.String())
	args.Set("data_type", dataTypeTimeseries)
	args.Set("api_key", c.apiKey)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(userAgent)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("provider request",
		zap.String("term", term),
		zap.String("window", window.String()),
		zap.String("geo", c.geo))

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("serpapi request for %q: %w", term, err)
	}
	return interpretResponse(term, resp.StatusCode(), resp.Body())
}

// interpretResponse maps a raw HTTP exchange to a payload or a typed error.
// A 2xx status is not enough: the provider reports many failures inside the
// body's "error" field, which classifyEnvelope sorts by message text.
func interpretResponse(term string, status int, body []byte) (trends.RawResponse, error) {
	switch {
	case status == fasthttp.StatusTooManyRequests || status >= 500:
		return nil, &TransientError{Term: term, StatusCode: status, Message: snippet(body)}
	case status >= 400:
		return nil, &PermanentError{Term: term, StatusCode: status, Message: snippet(body)}
	case status < 200 || status >= 300:
		return nil, &PermanentError{Term: term, StatusCode: status, Message: snippet(body)}
	}

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return nil, classifyEnvelope(term, envelope.Error)
	}

	// The response buffer is pooled by fasthttp; copy before it is reused.
	out := make(trends.RawResponse, len(body))
	copy(out, body)
	return out, nil
}

// snippet trims a response body down to an error-message-sized excerpt.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
