package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"QuonkLedger/internal/money"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource quotes tickers from the Yahoo Finance chart endpoint.
type YahooSource struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// YahooOption configures a YahooSource.
type YahooOption func(*YahooSource)

// NewYahooSource creates a Yahoo-backed quote source.
func NewYahooSource(opts ...YahooOption) *YahooSource {
	s := &YahooSource{
		baseURL: defaultYahooBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: "quonkledger/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithBaseURL overrides the endpoint, mainly for tests.
func WithBaseURL(u string) YahooOption {
	return func(s *YahooSource) { s.baseURL = u }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) YahooOption {
	return func(s *YahooSource) { s.httpClient.Timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) YahooOption {
	return func(s *YahooSource) { s.httpClient = hc }
}

// chartResponse is the subset of the chart payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *YahooSource) Quote(ctx context.Context, ticker string) (money.Amount, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", s.baseURL, url.PathEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return money.Amount{}, Unavailable(ticker, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return money.Amount{}, Unavailable(ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return money.Amount{}, Unavailable(ticker, fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return money.Amount{}, Unavailable(ticker, fmt.Errorf("decode response: %w", err))
	}

	if payload.Chart.Error != nil {
		return money.Amount{}, Unavailable(ticker, fmt.Errorf("%s: %s",
			payload.Chart.Error.Code, payload.Chart.Error.Description))
	}
	if len(payload.Chart.Result) == 0 || payload.Chart.Result[0].Meta.RegularMarketPrice == nil {
		return money.Amount{}, Unavailable(ticker, fmt.Errorf("no price in response"))
	}

	price := *payload.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return money.Amount{}, Unavailable(ticker, fmt.Errorf("non-positive price %v", price))
	}
	return money.FromFloat(price), nil
}
