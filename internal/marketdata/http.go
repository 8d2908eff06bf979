package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stock-analyzer/internal/model"
)

const (
	// DefaultBaseURL is Stooq's daily CSV download endpoint.
	DefaultBaseURL = "https://stooq.com/q/d/l/"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 2

	// DefaultSymbolSuffix maps plain tickers onto Stooq's US listing.
	DefaultSymbolSuffix = ".us"
)

// HTTPProvider downloads daily bars as CSV. The request carries
// s=<symbol><suffix>, i=d, d1=<from yyyymmdd>, d2=<to yyyymmdd>.
type HTTPProvider struct {
	baseURL    string
	suffix     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// HTTPOption configures the HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) HTTPOption {
	return func(p *HTTPProvider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.httpClient = c
	}
}

// WithRateLimit sets requests per second; burst is the same number,
// rounded up to at least 1.
func WithRateLimit(requestsPerSecond float64) HTTPOption {
	return func(p *HTTPProvider) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithSymbolSuffix sets the exchange suffix appended to symbols.
func WithSymbolSuffix(suffix string) HTTPOption {
	return func(p *HTTPProvider) {
		p.suffix = suffix
	}
}

// WithLogger sets a logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		p.log = l
	}
}

// NewHTTPProvider creates a rate-limited HTTP provider.
func NewHTTPProvider(opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: DefaultBaseURL,
		suffix:  DefaultSymbolSuffix,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// APIError is a non-200 response from the endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Symbol     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketdata http error: %s (status %d, symbol %s)", e.Message, e.StatusCode, e.Symbol)
}

// FetchBars implements model.DataProvider. An empty or "No data" body is
// ErrNoData.
func (p *HTTPProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time) (model.Series, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("s", strings.ToLower(symbol)+p.suffix)
	params.Set("i", "d")
	params.Set("d1", from.Format("20060102"))
	params.Set("d2", to.Format("20060102"))
	reqURL := p.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	p.log.Debug("fetching bars", "symbol", symbol, "url", reqURL)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body)), Symbol: symbol}
	}

	text := strings.TrimSpace(string(body))
	if text == "" || strings.EqualFold(text, "No data") {
		return nil, model.ErrNoData
	}
	series, err := ParseCSV(strings.NewReader(text))
	if err != nil {
		if errors.Is(err, model.ErrNoData) {
			return nil, err
		}
		return nil, fmt.Errorf("parse %s response: %w", symbol, err)
	}
	out := series.Between(model.Day(from), model.Day(to))
	if out.Empty() {
		return nil, model.ErrNoData
	}
	return out, nil
}
