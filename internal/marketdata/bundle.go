package marketdata

import (
	"context"
	"errors"
	"sync"
)

var errUnknownRequirement = errors.New("unknown requirement")

// Requirement is one logical kind of data an analyst needs.
type Requirement string

const (
	ReqQuote        Requirement = "quote"
	ReqDailySeries  Requirement = "daily_series"
	ReqFundamentals Requirement = "fundamentals"
	ReqIndicators   Requirement = "indicators"
	ReqNews         Requirement = "news"
	ReqSector       Requirement = "sector"
)

// Bundle is a partial result map: symbol -> requirement -> data. A pair
// that failed to fetch is simply absent.
type Bundle map[string]map[Requirement]any

// Get returns the data for a (symbol, requirement) pair if present.
func (b Bundle) Get(symbol string, req Requirement) (any, bool) {
	bySymbol, ok := b[NormalizeSymbol(symbol)]
	if !ok {
		return nil, false
	}
	v, ok := bySymbol[req]
	return v, ok
}

// FetchBundle expands requirements over symbols and fetches the remaining
// pairs in parallel, each still individually throttled by the shared
// limiter. A failure on one pair is logged and that pair is omitted; the
// bundle itself never fails.
func (c *Client) FetchBundle(ctx context.Context, requirements []Requirement, symbols []string) Bundle {
	out := make(Bundle, len(symbols))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	store := func(symbol string, req Requirement, v any) {
		mu.Lock()
		defer mu.Unlock()
		if out[symbol] == nil {
			out[symbol] = make(map[Requirement]any)
		}
		out[symbol][req] = v
	}

	// Sector data is market-wide: fetch it once up front, then share it.
	var sector SectorPerformance
	wantSector := false
	for _, req := range requirements {
		if req == ReqSector {
			wantSector = true
		}
	}
	if wantSector {
		perf, err := c.Sector(ctx)
		if err != nil {
			c.log.Warn("bundle fetch failed", "requirement", ReqSector, "error", err)
			wantSector = false
		} else {
			sector = perf
		}
	}

	// Duplicate symbols would burn limiter slots on identical requests.
	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		symbol := NormalizeSymbol(raw)
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		if wantSector {
			store(symbol, ReqSector, sector)
		}
		for _, req := range requirements {
			if req == ReqSector {
				continue
			}
			wg.Add(1)
			go func(symbol string, req Requirement) {
				defer wg.Done()
				v, err := c.fetchOne(ctx, symbol, req)
				if err != nil {
					c.log.Warn("bundle fetch failed", "symbol", symbol, "requirement", req, "error", err)
					return
				}
				store(symbol, req, v)
			}(symbol, req)
		}
	}
	wg.Wait()
	return out
}

func (c *Client) fetchOne(ctx context.Context, symbol string, req Requirement) (any, error) {
	switch req {
	case ReqQuote:
		return c.Quote(ctx, symbol)
	case ReqDailySeries:
		return c.DailySeries(ctx, symbol)
	case ReqFundamentals:
		return c.Overview(ctx, symbol)
	case ReqIndicators:
		return c.Indicator(ctx, symbol, "RSI", "daily", 14)
	case ReqNews:
		return c.NewsSentiment(ctx, []string{symbol})
	default:
		return nil, &FetchError{Function: string(req), Symbol: symbol,
			Err: errUnknownRequirement}
	}
}
