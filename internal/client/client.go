package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-etl/internal/models"
	"github.com/kjstillabower/weather-etl/internal/observability"
)

var (
	// ErrNetwork means the request could not complete (DNS, refused connection, timeout).
	ErrNetwork = errors.New("network error")
	// ErrResponse means the provider answered with a non-2xx status or a malformed body.
	ErrResponse = errors.New("response error")

	ErrInvalidAPIKey    = fmt.Errorf("%w: invalid API key", ErrResponse)
	ErrLocationNotFound = fmt.Errorf("%w: location not found", ErrResponse)
	ErrRateLimited      = fmt.Errorf("%w: rate limited", ErrResponse)
	ErrUpstreamFailure  = fmt.Errorf("%w: upstream failure", ErrResponse)
)

const maxBodyBytes = 1 << 20

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	units          string
	location       models.Location
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewOpenWeatherClient returns a single-attempt client.
func NewOpenWeatherClient(apiKey, apiURL string, location models.Location, units string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, location, units, timeout, 1, 500*time.Millisecond, 5*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL string, location models.Location, units string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if !location.HasCoordinates() && location.City == "" {
		return nil, fmt.Errorf("location requires a city or lat/lon")
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	if units == "" {
		units = "metric"
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		units:          units,
		location:       location,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Fetch performs the GET and returns the decoded JSON object. Numbers are kept as
// json.Number so integer fields survive decoding unchanged.
func (c *OpenWeatherClient) Fetch(ctx context.Context) (map[string]any, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
			case <-time.After(delay):
			}
		}

		payload, err := c.callAPI(ctx)
		if err == nil {
			return payload, nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
	}

	if c.retryAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context) (map[string]any, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if runID := observability.RunIDFrom(ctx); runID != "" {
		req.Header.Set("X-Correlation-ID", runID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", ErrNetwork, err)
	}

	return decodePayload(body)
}

func decodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrResponse, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: parse response: body is not a JSON object", ErrResponse)
	}
	return payload, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	if c.location.HasCoordinates() {
		params.Set("lat", strconv.FormatFloat(*c.location.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(*c.location.Lon, 'f', -1, 64))
	} else {
		params.Set("q", c.location.Query())
	}
	params.Set("appid", c.apiKey)
	params.Set("units", c.units)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// providerError is the error body OpenWeatherMap sends with 4xx responses.
type providerError struct {
	Message string `json:"message"`
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var pe providerError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &pe)
	detail := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if pe.Message != "" {
		detail += ": " + pe.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrLocationNotFound, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s", ErrUpstreamFailure, detail)
	}
	return fmt.Errorf("%w: %s", ErrResponse, detail)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
