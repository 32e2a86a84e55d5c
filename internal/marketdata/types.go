package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider TTLs. Quotes are near-real-time; fundamentals move with
// filings; news, sector and indicator data sit in between.
const (
	TTLQuote     = time.Minute
	TTLDaily     = time.Hour
	TTLOverview  = 24 * time.Hour
	TTLIndicator = 30 * time.Minute
	TTLNews      = 15 * time.Minute
	TTLSector    = 15 * time.Minute
	TTLSearch    = 24 * time.Hour
)

// FetchError is a typed provider failure: transport errors, non-2xx
// responses and provider-reported error or rate-limit payloads.
type FetchError struct {
	Function string
	Symbol   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("fetch %s: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("fetch %s for %s: %v", e.Function, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Quote is the latest traded price for a symbol.
type Quote struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change           decimal.Decimal `json:"change"`
	ChangePercent    float64         `json:"change_percent"`
	Volume           int64           `json:"volume"`
	LatestTradingDay string          `json:"latest_trading_day"`
}

// Bar is one day of OHLCV data.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// CompanyOverview is a subset of the provider's fundamentals payload.
type CompanyOverview struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Sector        string `json:"sector"`
	Industry      string `json:"industry"`
	MarketCap     string `json:"market_cap"`
	PERatio       string `json:"pe_ratio"`
	EPS           string `json:"eps"`
	DividendYield string `json:"dividend_yield"`
	Beta          string `json:"beta"`
	High52Week    string `json:"high_52_week"`
	Low52Week     string `json:"low_52_week"`
}

// IndicatorPoint is one dated value of a technical indicator.
type IndicatorPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IndicatorSeries is a technical indicator time series, newest first.
type IndicatorSeries struct {
	Symbol    string           `json:"symbol"`
	Indicator string           `json:"indicator"`
	Interval  string           `json:"interval"`
	Points    []IndicatorPoint `json:"points"`
}

// NewsItem is one article with provider-computed sentiment.
type NewsItem struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Source         string  `json:"source"`
	PublishedAt    string  `json:"published_at"`
	SentimentScore float64 `json:"sentiment_score"`
	SentimentLabel string  `json:"sentiment_label"`
}

// SectorPerformance maps sector name to real-time percent change.
type SectorPerformance map[string]string

// SymbolMatch is one result of a symbol search.
type SymbolMatch struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Region     string `json:"region"`
	Currency   string `json:"currency"`
	MatchScore string `json:"match_score"`
}

// ValidateSymbol checks that a ticker symbol has a plausible format.
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts a symbol to its canonical form.
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
