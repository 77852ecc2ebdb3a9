package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config controls timeouts, retries and limits.
type Config struct {
	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialInterval is the first backoff delay. Later delays grow
	// exponentially up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodyBytes caps response bodies and unpacked archives.
	MaxBodyBytes int64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		UserAgent:       "geokit",
		MaxBodyBytes:    256 << 20,
	}
}

// Kind tells which payload a Result holds.
type Kind int

const (
	// KindAny accepts either payload in Expect.
	KindAny Kind = iota
	KindFeatures
	KindRaster
)

func (k Kind) String() string {
	switch k {
	case KindFeatures:
		return "features"
	case KindRaster:
		return "raster"
	}
	return "any"
}

// Expect describes the payload a caller accepts. Zero fields accept
// anything.
type Expect struct {
	Kind          Kind
	CRS           *geo.CRS
	GeometryTypes []geo.GeometryType
}

func mismatch(endpoint, field, expected, got string) error {
	return &geo.SchemaMismatchError{Endpoint: endpoint, Field: field, Expected: expected, Got: got}
}

// checkKind runs before the payload is decoded.
func (e Expect) checkKind(endpoint string, got Kind) error {
	if e.Kind != KindAny && e.Kind != got {
		return mismatch(endpoint, "kind", e.Kind.String(), got.String())
	}
	return nil
}

func (e Expect) checkCRS(endpoint string, crs *geo.CRS) error {
	if e.CRS == nil || e.CRS.Equal(crs) {
		return nil
	}
	got := "none"
	if crs != nil {
		got = crs.String()
	}
	return mismatch(endpoint, "crs", e.CRS.String(), got)
}

func (e Expect) check(endpoint string, res *Result) error {
	if err := e.checkKind(endpoint, res.Kind); err != nil {
		return err
	}

	var crs *geo.CRS
	if res.Features != nil {
		crs = res.Features.CRS
	} else if res.Raster != nil {
		crs = res.Raster.CRS()
	}
	if err := e.checkCRS(endpoint, crs); err != nil {
		return err
	}

	if len(e.GeometryTypes) == 0 || res.Features == nil {
		return nil
	}
	allowed := make(map[geo.GeometryType]bool, len(e.GeometryTypes))
	names := make([]string, len(e.GeometryTypes))
	for i, t := range e.GeometryTypes {
		allowed[t] = true
		names[i] = t.String()
	}
	for _, t := range res.Features.GeometryTypes() {
		if !allowed[t] {
			return mismatch(endpoint, "geometry type", strings.Join(names, "|"), t.String())
		}
	}
	return nil
}

// Result is a fetched payload: Features when Kind is KindFeatures, Raster
// when Kind is KindRaster.
type Result struct {
	Kind        Kind
	Features    *geo.FeatureCollection
	Raster      *raster.Raster
	ContentType string
	RequestID   string
	Attempts    int
}

// Client fetches vector and raster resources over HTTP with retries.
type Client struct {
	cfg     Config
	http    *http.Client
	log     zerolog.Logger
	metrics *metrics
	err     error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics registers the client's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		if err := c.metrics.register(reg); err != nil {
			c.err = errors.Wrap(err, "register service metrics")
		}
	}
}

// NewClient creates a client. Zero durations, limits and user agent take
// their defaults; MaxRetries is used as given.
func NewClient(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		log:     zerolog.Nop(),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// statusError is a non-2xx response.
type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.status)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Fetch requests endpoint with q and decodes the body by its media type:
// GeoJSON, GeoTIFF or a zipped shapefile.
//
// Network errors, 429 and 5xx responses are retried with exponential
// backoff; when retries run out, or on any other non-2xx status, Fetch
// fails with geo.ServiceUnavailableError. Cancelling ctx fails with
// geo.CancelledError. A payload that does not match want fails with
// geo.SchemaMismatchError.
func (c *Client) Fetch(ctx context.Context, endpoint string, q Query, want Expect) (*Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	vals, err := q.Values()
	if err != nil {
		return nil, errors.Wrap(err, "encode query")
	}

	method := strings.ToUpper(q.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, errors.Errorf("unsupported method %q", q.Method)
	}
	var form string
	if method == http.MethodGet {
		merged := u.Query()
		for k, vs := range vals {
			merged[k] = append(merged[k], vs...)
		}
		u.RawQuery = merged.Encode()
	} else {
		form = vals.Encode()
	}

	label := u.Host + u.Path
	requestID := uuid.NewString()
	log := c.log.With().Str("endpoint", label).Str("request_id", requestID).Logger()

	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.cfg.InitialInterval),
		backoff.WithMaxInterval(c.cfg.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries)), ctx)

	type payload struct {
		body        []byte
		contentType string
	}
	attempts := 0
	op := func() (payload, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		var body io.Reader
		if form != "" {
			body = strings.NewReader(form)
		}
		req, err := http.NewRequestWithContext(actx, method, u.String(), body)
		if err != nil {
			return payload{}, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("X-Request-ID", requestID)
		if form != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		elapsed := time.Since(start)
		c.metrics.duration.WithLabelValues(label).Observe(elapsed.Seconds())
		if err != nil {
			c.metrics.requests.WithLabelValues(label, "network_error").Inc()
			log.Debug().Int("attempt", attempts).Dur("duration", elapsed).Err(err).Msg("Request failed")
			if ctx.Err() != nil {
				return payload{}, backoff.Permanent(ctx.Err())
			}
			return payload{}, err
		}
		defer resp.Body.Close()

		log.Debug().
			Int("attempt", attempts).
			Int("status", resp.StatusCode).
			Dur("duration", elapsed).
			Msg("Response received")

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.metrics.requests.WithLabelValues(label, "http_error").Inc()
			if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)); err != nil {
				log.Debug().Int("attempt", attempts).Err(err).Msg("Failed to drain error response")
			}
			serr := &statusError{status: resp.Status}
			if !retryable(resp.StatusCode) {
				return payload{}, backoff.Permanent(serr)
			}
			return payload{}, serr
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
		if err != nil {
			c.metrics.requests.WithLabelValues(label, "network_error").Inc()
			if ctx.Err() != nil {
				return payload{}, backoff.Permanent(ctx.Err())
			}
			return payload{}, errors.Wrap(err, "read body")
		}
		if int64(len(data)) > c.cfg.MaxBodyBytes {
			c.metrics.requests.WithLabelValues(label, "too_large").Inc()
			return payload{}, backoff.Permanent(errors.Errorf("body exceeds %d bytes", c.cfg.MaxBodyBytes))
		}
		c.metrics.requests.WithLabelValues(label, "ok").Inc()
		return payload{body: data, contentType: resp.Header.Get("Content-Type")}, nil
	}

	notify := func(err error, wait time.Duration) {
		c.metrics.retries.WithLabelValues(label).Inc()
		log.Warn().Err(err).Int("attempt", attempts).Dur("backoff", wait).Msg("Retrying request")
	}

	p, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &geo.CancelledError{Op: "fetch", Endpoint: endpoint, Err: ctx.Err()}
		}
		log.Error().Err(err).Int("attempts", attempts).Msg("Service unavailable")
		return nil, &geo.ServiceUnavailableError{Endpoint: endpoint, Attempts: attempts, Err: err}
	}

	res, err := c.materialize(endpoint, p.contentType, p.body, want)
	if err != nil {
		return nil, err
	}
	res.RequestID = requestID
	res.Attempts = attempts
	log.Info().
		Str("kind", res.Kind.String()).
		Int("attempts", attempts).
		Int("bytes", len(p.body)).
		Msg("Fetched")
	return res, nil
}

// FetchFeatures fetches a feature payload.
func (c *Client) FetchFeatures(ctx context.Context, endpoint string, q Query, want Expect) (*geo.FeatureCollection, error) {
	want.Kind = KindFeatures
	res, err := c.Fetch(ctx, endpoint, q, want)
	if err != nil {
		return nil, err
	}
	return res.Features, nil
}

// FetchRaster fetches a GeoTIFF payload.
func (c *Client) FetchRaster(ctx context.Context, endpoint string, q Query, want Expect) (*raster.Raster, error) {
	want.Kind = KindRaster
	res, err := c.Fetch(ctx, endpoint, q, want)
	if err != nil {
		return nil, err
	}
	return res.Raster, nil
}
