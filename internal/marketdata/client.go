// Package marketdata serves quote, time-series, fundamentals, indicator,
// news-sentiment and sector requests from a quota-constrained provider,
// composing a TTL cache with a sliding-window rate limiter.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"stock-advisors/internal/cache"
	"stock-advisors/internal/ratelimit"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Client handles all provider API operations.
type Client struct {
	http    *resty.Client
	cache   *cache.Cache[[]byte]
	limiter *ratelimit.Limiter
	apiKey  string
	log     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.http.SetBaseURL(url) }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a provider client throttled by limiter.
func NewClient(apiKey string, limiter *ratelimit.Limiter, opts ...Option) *Client {
	httpClient := resty.New()
	httpClient.SetBaseURL(defaultBaseURL)
	httpClient.SetTimeout(30 * time.Second)

	c := &Client{
		http:    httpClient,
		cache:   cache.New[[]byte](),
		limiter: limiter,
		apiKey:  apiKey,
		log:     slog.Default().With("component", "marketdata"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheStats exposes the underlying cache hit/miss counters.
func (c *Client) CacheStats() (hits, misses uint64) {
	return c.cache.Stats()
}

// PruneCache eagerly drops expired cache entries.
func (c *Client) PruneCache() int {
	return c.cache.Prune()
}

// errorPayload covers the provider's in-band failure shapes: an error
// message, or a rate-limit note delivered with HTTP 200.
type errorPayload struct {
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func providerError(body []byte) string {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	switch {
	case p.ErrorMessage != "":
		return p.ErrorMessage
	case p.Note != "":
		return "rate limited: " + p.Note
	case p.Information != "":
		return p.Information
	}
	return ""
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// cachedFetch returns the cached body for key if fresh; otherwise it
// schedules the network call through the limiter, stores the result with
// its TTL and returns it.
func (c *Client) cachedFetch(ctx context.Context, key string, ttl time.Duration, params map[string]string) ([]byte, error) {
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}

	fn := params["function"]
	symbol := params["symbol"]
	var body []byte
	err := c.limiter.Do(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("apikey", c.apiKey).
			Get("/query")
		if err != nil {
			return &FetchError{Function: fn, Symbol: symbol, Err: err}
		}
		if resp.StatusCode() != 200 {
			return &FetchError{Function: fn, Symbol: symbol,
				Err: fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())}
		}
		if msg := providerError(resp.Body()); msg != "" {
			return &FetchError{Function: fn, Symbol: symbol, Err: fmt.Errorf("%s", msg)}
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, body, ttl)
	return body, nil
}

// Quote gets the latest quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	body, err := c.cachedFetch(ctx, cacheKey("quote", symbol), TTLQuote, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Function: "GLOBAL_QUOTE", Symbol: symbol,
			Err: fmt.Errorf("failed to parse quote response: %w", err)}
	}
	if len(payload.GlobalQuote) == 0 {
		return nil, &FetchError{Function: "GLOBAL_QUOTE", Symbol: symbol,
			Err: fmt.Errorf("empty quote payload")}
	}

	q := payload.GlobalQuote
	price, err := decimal.NewFromString(q["05. price"])
	if err != nil {
		return nil, &FetchError{Function: "GLOBAL_QUOTE", Symbol: symbol,
			Err: fmt.Errorf("invalid price %q", q["05. price"])}
	}
	change, _ := decimal.NewFromString(q["09. change"])
	changePct, _ := strconv.ParseFloat(strings.TrimSuffix(q["10. change percent"], "%"), 64)
	volume, _ := strconv.ParseInt(q["06. volume"], 10, 64)

	return &Quote{
		Symbol:           symbol,
		Price:            price,
		Change:           change,
		ChangePercent:    changePct,
		Volume:           volume,
		LatestTradingDay: q["07. latest trading day"],
	}, nil
}

// DailySeries gets the daily OHLCV series for a symbol, newest first.
func (c *Client) DailySeries(ctx context.Context, symbol string) ([]Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	body, err := c.cachedFetch(ctx, cacheKey("daily", symbol), TTLDaily, map[string]string{
		"function": "TIME_SERIES_DAILY",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Function: "TIME_SERIES_DAILY", Symbol: symbol,
			Err: fmt.Errorf("failed to parse series response: %w", err)}
	}

	bars := make([]Bar, 0, len(payload.Series))
	for date, row := range payload.Series {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		open, _ := decimal.NewFromString(row["1. open"])
		high, _ := decimal.NewFromString(row["2. high"])
		low, _ := decimal.NewFromString(row["3. low"])
		closePrice, _ := decimal.NewFromString(row["4. close"])
		volume, _ := strconv.ParseInt(row["5. volume"], 10, 64)
		bars = append(bars, Bar{Date: day, Open: open, High: high, Low: low, Close: closePrice, Volume: volume})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.After(bars[j].Date) })
	return bars, nil
}

// Overview gets company fundamentals for a symbol.
func (c *Client) Overview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	body, err := c.cachedFetch(ctx, cacheKey("overview", symbol), TTLOverview, map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Function: "OVERVIEW", Symbol: symbol,
			Err: fmt.Errorf("failed to parse overview response: %w", err)}
	}

	return &CompanyOverview{
		Symbol:        symbol,
		Name:          raw["Name"],
		Sector:        raw["Sector"],
		Industry:      raw["Industry"],
		MarketCap:     raw["MarketCapitalization"],
		PERatio:       raw["PERatio"],
		EPS:           raw["EPS"],
		DividendYield: raw["DividendYield"],
		Beta:          raw["Beta"],
		High52Week:    raw["52WeekHigh"],
		Low52Week:     raw["52WeekLow"],
	}, nil
}

// Indicator gets a technical indicator series (e.g. RSI, SMA) for a symbol.
func (c *Client) Indicator(ctx context.Context, symbol, indicator, interval string, timePeriod int) (*IndicatorSeries, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)
	indicator = strings.ToUpper(indicator)

	key := cacheKey("indicator", symbol, indicator, interval, strconv.Itoa(timePeriod))
	body, err := c.cachedFetch(ctx, key, TTLIndicator, map[string]string{
		"function":    indicator,
		"symbol":      symbol,
		"interval":    interval,
		"time_period": strconv.Itoa(timePeriod),
		"series_type": "close",
	})
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Function: indicator, Symbol: symbol,
			Err: fmt.Errorf("failed to parse indicator response: %w", err)}
	}

	series := &IndicatorSeries{Symbol: symbol, Indicator: indicator, Interval: interval}
	for name, section := range raw {
		if !strings.HasPrefix(name, "Technical Analysis") {
			continue
		}
		var rows map[string]map[string]string
		if err := json.Unmarshal(section, &rows); err != nil {
			return nil, &FetchError{Function: indicator, Symbol: symbol,
				Err: fmt.Errorf("failed to parse indicator rows: %w", err)}
		}
		for date, row := range rows {
			day, err := time.Parse("2006-01-02", date)
			if err != nil {
				continue
			}
			for _, v := range row {
				value, err := strconv.ParseFloat(v, 64)
				if err == nil {
					series.Points = append(series.Points, IndicatorPoint{Date: day, Value: value})
				}
				break
			}
		}
	}
	sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].Date.After(series.Points[j].Date) })
	return series, nil
}

// NewsSentiment gets recent articles with provider sentiment for tickers.
func (c *Client) NewsSentiment(ctx context.Context, symbols []string) ([]NewsItem, error) {
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if err := ValidateSymbol(s); err != nil {
			return nil, err
		}
		normalized = append(normalized, NormalizeSymbol(s))
	}
	tickers := strings.Join(normalized, ",")

	body, err := c.cachedFetch(ctx, cacheKey("news", tickers), TTLNews, map[string]string{
		"function": "NEWS_SENTIMENT",
		"tickers":  tickers,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Feed []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Source        string  `json:"source"`
			TimePublished string  `json:"time_published"`
			Score         float64 `json:"overall_sentiment_score"`
			Label         string  `json:"overall_sentiment_label"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Function: "NEWS_SENTIMENT", Symbol: tickers,
			Err: fmt.Errorf("failed to parse news response: %w", err)}
	}

	items := make([]NewsItem, 0, len(payload.Feed))
	for _, f := range payload.Feed {
		items = append(items, NewsItem{
			Title:          f.Title,
			URL:            f.URL,
			Source:         f.Source,
			PublishedAt:    f.TimePublished,
			SentimentScore: f.Score,
			SentimentLabel: f.Label,
		})
	}
	return items, nil
}

// Sector gets real-time sector performance for the whole market.
func (c *Client) Sector(ctx context.Context) (SectorPerformance, error) {
	body, err := c.cachedFetch(ctx, cacheKey("sector"), TTLSector, map[string]string{
		"function": "SECTOR",
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Function: "SECTOR",
			Err: fmt.Errorf("failed to parse sector response: %w", err)}
	}

	for name, section := range payload {
		if !strings.Contains(name, "Real-Time Performance") {
			continue
		}
		var perf SectorPerformance
		if err := json.Unmarshal(section, &perf); err != nil {
			return nil, &FetchError{Function: "SECTOR",
				Err: fmt.Errorf("failed to parse sector rows: %w", err)}
		}
		return perf, nil
	}
	return SectorPerformance{}, nil
}

// SearchSymbols finds symbols matching a free-text query.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	body, err := c.cachedFetch(ctx, cacheKey("search", strings.ToLower(query)), TTLSearch, map[string]string{
		"function": "SYMBOL_SEARCH",
		"keywords": query,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		BestMatches []map[string]string `json:"bestMatches"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &FetchError{Function: "SYMBOL_SEARCH",
			Err: fmt.Errorf("failed to parse search response: %w", err)}
	}

	matches := make([]SymbolMatch, 0, len(payload.BestMatches))
	for _, m := range payload.BestMatches {
		matches = append(matches, SymbolMatch{
			Symbol:     m["1. symbol"],
			Name:       m["2. name"],
			Region:     m["4. region"],
			Currency:   m["8. currency"],
			MatchScore: m["9. matchScore"],
		})
	}
	return matches, nil
}
