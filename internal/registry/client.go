// Package registry reads patient demographics from the central patient
// registry. Callers must authorize access before fetching.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"healthconsent/internal/registry/metrics"
	id "healthconsent/pkg/domain"
	"healthconsent/pkg/platform/circuit"
	"healthconsent/pkg/platform/sentinel"
)

var (
	// ErrNotFound means the registry has no record for the patient.
	ErrNotFound = sentinel.ErrNotFound
	// ErrUnavailable covers transport failures, timeouts, 5xx answers and an open breaker.
	ErrUnavailable = sentinel.ErrUnavailable
)

// DefaultTimeout bounds one registry call.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// Source returns a patient's registry record.
type Source interface {
	Fetch(ctx context.Context, patientID id.PatientID) (*PatientRecord, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the registry over HTTP with an API key.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    HTTPDoer
	breaker *circuit.Breaker
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

type ClientOption func(*Client)

func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer("healthconsent/registry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.breaker == nil {
		c.breaker = circuit.New("registry")
	}
	return c
}

// Fetch reads GET /api/registry/patients/{id}.
func (c *Client) Fetch(ctx context.Context, patientID id.PatientID) (*PatientRecord, error) {
	return c.get(ctx, "registry.fetch", "/api/registry/patients/"+url.PathEscape(patientID.String()),
		attribute.String("patient_id", patientID.String()))
}

// SearchByNationalID reads GET /api/registry/patients?national_id=.
// It exposes no clinical data and is not consent-gated.
func (c *Client) SearchByNationalID(ctx context.Context, nationalID string) (*PatientRecord, error) {
	return c.get(ctx, "registry.search", "/api/registry/patients?national_id="+url.QueryEscape(nationalID))
}

func (c *Client) get(ctx context.Context, spanName, path string, attrs ...attribute.KeyValue) (rec *PatientRecord, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.ObserveFetch(outcome(err), start)
	}()

	if !c.breaker.Allow() {
		span.AddEvent("breaker_open")
		return nil, fmt.Errorf("registry circuit open: %w", ErrUnavailable)
	}

	rec, err = c.do(ctx, path)
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		c.breaker.RecordSuccess()
	default:
		if c.breaker.RecordFailure() {
			c.metrics.IncBreakerOpened()
		}
	}
	return rec, err
}

func (c *Client) do(ctx context.Context, path string) (*PatientRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %v: %w", err, ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read registry response: %v: %w", err, ErrUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("registry: %w", ErrNotFound)
	default:
		return nil, fmt.Errorf("registry returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var rec PatientRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode registry response: %v: %w", err, ErrUnavailable)
	}
	return &rec, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "unavailable"
	}
}
