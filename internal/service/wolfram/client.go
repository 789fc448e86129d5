package wolfram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/daniilk/voice-assistant/backend/internal/model/answer"
)

const queryPath = "/v2/query"

// Config configures the query client.
type Config struct {
	AppID   string
	BaseURL string
	Format  string
	Timeout time.Duration
}

// Client issues Full Results API queries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	outcomes   metric.Int64Counter
}

// NewClient validates cfg and returns a client using the global telemetry providers.
func NewClient(cfg Config) (*Client, error) {
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	if cfg.AppID == "" {
		return nil, errors.New("wolfram app id is required")
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("wolfram base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid wolfram base url: %w", err)
	}

	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = "plaintext"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	meter := otel.Meter("wolfram")
	duration, err := meter.Float64Histogram(
		"wolfram.query.duration",
		metric.WithDescription("Query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		"wolfram.query.outcomes",
		metric.WithDescription("Queries by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("wolfram"),
		duration:   duration,
		outcomes:   outcomes,
	}, nil
}

// Query sends input to the service. A nil error means the service answered;
// the answer itself may still report failure via Success or Error.
func (c *Client) Query(ctx context.Context, input string) (*answer.QueryResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, newError(ErrorInvalidInput, "input is empty", nil)
	}

	ctx, span := c.tracer.Start(ctx, "wolfram.query", trace.WithAttributes(
		attribute.Int("wolfram.input_length", len(input)),
	))
	defer span.End()

	start := time.Now()
	result, err := c.do(ctx, input)
	outcome := outcomeOf(result, err)

	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	c.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	span.SetAttributes(attribute.String("wolfram.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[wolfram] query failed: %v", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("wolfram.pods", len(result.Pods)))
	return result, nil
}

func (c *Client) do(ctx context.Context, input string) (*answer.QueryResult, error) {
	params := url.Values{}
	params.Set("appid", c.cfg.AppID)
	params.Set("input", input)
	params.Set("format", c.cfg.Format)
	params.Set("output", "json")

	endpoint := c.cfg.BaseURL + queryPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newError(ErrorTransport, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(ErrorTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(ErrorTransport, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(ErrorStatus, fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}

	result, err := decodeResult(body)
	if err != nil {
		return nil, newError(ErrorDecode, "failed to decode response", err)
	}
	return result, nil
}

func outcomeOf(result *answer.QueryResult, err error) string {
	if err != nil {
		var qErr *Error
		if errors.As(err, &qErr) {
			return strings.ToLower(string(qErr.Code))
		}
		return "error"
	}
	switch {
	case result.Error:
		return "server_error"
	case !result.Success:
		return "unrecognized"
	default:
		return "success"
	}
}
