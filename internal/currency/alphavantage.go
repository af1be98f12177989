package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"quotefetch/internal/ratelimit"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=currency_test -destination=mock_http_client_test.go -source=alphavantage.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultBaseURL = "https://www.alphavantage.co/query"
	apiKeyEnv      = "ALPHAVANTAGE_API_KEY"

	// maxAttempts bounds the retries when the API answers with a
	// throttle advisory instead of a rate.
	maxAttempts       = 5
	defaultRetryDelay = 20 * time.Second

	// Rates below this lose too many significant digits in the JSON
	// payload; the inverse direction is fetched instead.
	precisionFloor = 0.001
)

// AlphaVantage fetches realtime exchange rates from the Alpha Vantage
// CURRENCY_EXCHANGE_RATE endpoint.
type AlphaVantage struct {
	// baseURL is the query endpoint.
	baseURL string
	// apiKey authenticates every request; without one the source
	// reports ErrNoRate instead of calling out.
	apiKey string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// limiter gates requests; the free tier allows 5 per minute.
	limiter ratelimit.Limiter
	// retryDelay is slept between throttled attempts.
	retryDelay time.Duration
	logger     *slog.Logger
}

// AlphaVantageOption is a configuration option for the rate source.
type AlphaVantageOption func(*AlphaVantage)

// WithBaseURL sets the query endpoint.
func WithBaseURL(baseURL string) AlphaVantageOption {
	return func(av *AlphaVantage) {
		av.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) AlphaVantageOption {
	return func(av *AlphaVantage) {
		av.httpClient = httpClient
	}
}

// WithRetryDelay sets the pause between throttled attempts.
func WithRetryDelay(d time.Duration) AlphaVantageOption {
	return func(av *AlphaVantage) {
		av.retryDelay = d
	}
}

// WithLimiter replaces the default request limiter.
func WithLimiter(l ratelimit.Limiter) AlphaVantageOption {
	return func(av *AlphaVantage) {
		av.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AlphaVantageOption {
	return func(av *AlphaVantage) {
		av.logger = logger
	}
}

// NewAlphaVantage creates a rate source. An empty key falls back to the
// ALPHAVANTAGE_API_KEY environment variable.
func NewAlphaVantage(apiKey string, options ...AlphaVantageOption) *AlphaVantage {
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	av := &AlphaVantage{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		limiter:    ratelimit.PerMinute(5),
		retryDelay: defaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(av)
	}
	return av
}

// Rate implements RateSource. Tiny rates are recomputed from the
// inverse direction so the result keeps its significant digits; the
// reciprocal is rounded to 8 decimal places.
func (av *AlphaVantage) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	if av.apiKey == "" {
		return 0, fmt.Errorf("%w: %s not set", ErrNoRate, apiKeyEnv)
	}
	rate, err := av.fetch(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if rate < precisionFloor {
		inverse, err := av.fetch(ctx, to, from)
		if err != nil {
			return 0, err
		}
		if inverse <= 0 {
			return 0, fmt.Errorf("%w: unusable inverse rate for %s/%s", ErrNoRate, to, from)
		}
		rate = math.Round(1/inverse*1e8) / 1e8
	}
	return rate, nil
}

type avPayload struct {
	Exchange     map[string]string `json:"Realtime Currency Exchange Rate"`
	ErrorMessage string            `json:"Error Message"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
}

func (av *AlphaVantage) fetch(ctx context.Context, from, to string) (float64, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if av.limiter != nil {
			if err := av.limiter.Wait(ctx); err != nil {
				return 0, err
			}
		}
		rate, retry, err := av.query(ctx, from, to)
		if err != nil {
			return 0, err
		}
		if !retry {
			return rate, nil
		}
		if attempt == maxAttempts {
			break
		}
		av.logger.Debug("rate source throttled, retrying",
			"from", from, "to", to, "attempt", attempt)
		timer := time.NewTimer(av.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	return 0, fmt.Errorf("%w: throttled after %d attempts for %s/%s", ErrNoRate, maxAttempts, from, to)
}

// query performs one request. retry=true means the API sent a throttle
// advisory instead of a rate.
func (av *AlphaVantage) query(ctx context.Context, from, to string) (rate float64, retry bool, err error) {
	q := url.Values{}
	q.Set("function", "CURRENCY_EXCHANGE_RATE")
	q.Set("from_currency", from)
	q.Set("to_currency", to)
	q.Set("apikey", av.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, av.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := av.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrNoRate, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return 0, false, fmt.Errorf("%w: GET %s -> %d: %s", ErrNoRate, av.baseURL, resp.StatusCode, string(b))
	}

	var payload avPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, false, fmt.Errorf("%w: decode: %v", ErrNoRate, err)
	}
	if payload.ErrorMessage != "" {
		return 0, false, fmt.Errorf("%w: %s", ErrNoRate, payload.ErrorMessage)
	}
	if s, ok := payload.Exchange["5. Exchange Rate"]; ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: bad rate %q", ErrNoRate, s)
		}
		return v, false, nil
	}
	// A Note (or Information) without a rate is the throttle hint.
	if payload.Note != "" || payload.Information != "" {
		return 0, true, nil
	}
	return 0, false, fmt.Errorf("%w: no rate in payload for %s/%s", ErrNoRate, from, to)
}
