// Package data retrieves daily prices from Yahoo Finance through a layered
// cache and assembles them into aligned price matrices.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/rotator/internal/market"
)

// Provider downloads a daily series. A zero range means all history.
type Provider interface {
	FetchDaily(ctx context.Context, ticker string, r market.DateRange) (market.PriceSeries, error)
}

// ErrEmptyData marks a response without a single usable price.
var ErrEmptyData = errors.New("empty data")

// StatusError is an HTTP failure from the provider.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Code)
}

// YahooConfig configures the chart API client.
type YahooConfig struct {
	BaseURL   string        `yaml:"BaseURL" json:"base_url"`
	RPS       float64       `yaml:"RPS" json:"rps"`
	Burst     int           `yaml:"Burst" json:"burst"`
	Timeout   time.Duration `yaml:"Timeout" json:"timeout"`
	UserAgent string        `yaml:"UserAgent" json:"user_agent"`
}

// DefaultYahooConfig targets the public query1 host at 2 requests/second.
func DefaultYahooConfig() YahooConfig {
	return YahooConfig{
		BaseURL:   "https://query1.finance.yahoo.com",
		RPS:       2,
		Burst:     2,
		Timeout:   15 * time.Second,
		UserAgent: "rotator/1.0",
	}
}

// YahooProvider reads /v8/finance/chart behind a token bucket and a
// circuit breaker. Unknown tickers (404) do not count against the breaker.
type YahooProvider struct {
	cfg     YahooConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewYahooProvider builds a provider from cfg.
func NewYahooProvider(cfg YahooConfig) *YahooProvider {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultYahooConfig().RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultYahooConfig().Timeout
	}

	settings := gobreaker.Settings{
		Name:        "yahoo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || errors.Is(err, ErrEmptyData) || (errors.As(err, &se) && se.Code == http.StatusNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &YahooProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// BreakerState reports the circuit state.
func (p *YahooProvider) BreakerState() gobreaker.State {
	return p.breaker.State()
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily downloads adjusted closes for ticker, falling back to raw
// closes when the adjusted column is absent. Null points are skipped.
func (p *YahooProvider) FetchDaily(ctx context.Context, ticker string, r market.DateRange) (market.PriceSeries, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return market.PriceSeries{}, err
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, ticker, r)
	})
	if err != nil {
		return market.PriceSeries{}, err
	}
	return out.(market.PriceSeries), nil
}

func (p *YahooProvider) chartURL(ticker string, r market.DateRange) string {
	start := int64(0)
	if !r.Start.IsZero() {
		start = r.Start.Unix()
	}
	end := time.Now().Unix()
	if !r.End.IsZero() {
		end = r.End.AddDate(0, 0, 1).Unix()
	}
	q := url.Values{}
	q.Set("period1", fmt.Sprint(start))
	q.Set("period2", fmt.Sprint(end))
	q.Set("interval", "1d")
	q.Set("events", "div,splits")
	return fmt.Sprintf("%s/v8/finance/chart/%s?%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(strings.ToUpper(ticker)), q.Encode())
}

func (p *YahooProvider) fetch(ctx context.Context, ticker string, r market.DateRange) (market.PriceSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.chartURL(ticker, r), nil)
	if err != nil {
		return market.PriceSeries{}, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return market.PriceSeries{}, err
	}
	defer resp.Body.Close()

	log.Debug().
		Str("ticker", ticker).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Chart request completed")

	if resp.StatusCode >= 400 {
		return market.PriceSeries{}, &StatusError{Code: resp.StatusCode}
	}

	var body chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return market.PriceSeries{}, fmt.Errorf("decode chart: %w", err)
	}
	if body.Chart.Error != nil {
		return market.PriceSeries{}, fmt.Errorf("%s: %s", body.Chart.Error.Code, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 {
		return market.PriceSeries{}, ErrEmptyData
	}
	return parseChart(ticker, body)
}

func parseChart(ticker string, body chartResponse) (market.PriceSeries, error) {
	res := body.Chart.Result[0]
	var closes []*float64
	if len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) > 0 {
		closes = res.Indicators.AdjClose[0].AdjClose
	} else if len(res.Indicators.Quote) > 0 {
		closes = res.Indicators.Quote[0].Close
	}

	var points []market.Point
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		d := market.Day(time.Unix(ts, 0))
		pt := market.Point{Date: d, Price: *closes[i]}
		// intraday duplicates of the last session replace the earlier bar
		if n := len(points); n > 0 && !d.After(points[n-1].Date) {
			if d.Equal(points[n-1].Date) {
				points[n-1] = pt
			}
			continue
		}
		points = append(points, pt)
	}
	if len(points) == 0 {
		return market.PriceSeries{}, ErrEmptyData
	}
	return market.NewPriceSeries(strings.ToUpper(ticker), points)
}
