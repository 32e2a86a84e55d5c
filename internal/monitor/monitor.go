// Package monitor periodically checks open positions against live
// quotes and fires stop-loss and take-profit exits.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-advisors/internal/marketdata"
	"stock-advisors/internal/models"
	"stock-advisors/internal/notify"
	"stock-advisors/internal/trading"
)

// PriceSource supplies the current quote for a symbol.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// Monitor drives trigger evaluation on an interval. The interval and
// notifier can be swapped while the loop runs, so config edits take
// effect without a restart.
type Monitor struct {
	engine *trading.Engine
	prices PriceSource
	log    *slog.Logger

	mu       sync.Mutex
	notifier notify.Notifier
	interval time.Duration
	wake     chan struct{}
}

// New builds a monitor. An interval of zero or less disables the
// periodic loop: Start then performs a single sweep and returns.
func New(engine *trading.Engine, prices PriceSource, notifier notify.Notifier, interval time.Duration) *Monitor {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Monitor{
		engine:   engine,
		prices:   prices,
		log:      slog.Default().With("component", "monitor"),
		notifier: notifier,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
}

// SetInterval changes the sweep interval and interrupts any wait in
// progress; setting zero or less stops the loop at the next check.
func (m *Monitor) SetInterval(d time.Duration) {
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// SetNotifier swaps the alert sink.
func (m *Monitor) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Noop{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Interval returns the current sweep interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *Monitor) currentNotifier() notify.Notifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

// Start sweeps once immediately and then on every interval tick until
// ctx is cancelled. The interval is re-read each round and SetInterval
// wakes a pending wait, so changes take effect without restarting.
func (m *Monitor) Start(ctx context.Context) {
	m.Sweep(ctx)
	for {
		interval := m.Interval()
		if interval <= 0 {
			return
		}
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			m.Sweep(ctx)
		case <-m.wake:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Sweep fetches quotes for every open symbol and closes crossed
// positions. Symbols whose quote fails are skipped this round; a panic
// in a sweep never takes the loop down.
func (m *Monitor) Sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("sweep panicked", "panic", r)
		}
	}()

	symbols := m.engine.OpenSymbols()
	if len(symbols) == 0 {
		return
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		quote, err := m.prices.Quote(ctx, symbol)
		if err != nil {
			m.log.Warn("quote unavailable, skipping symbol", "symbol", symbol, "error", err)
			continue
		}
		prices[symbol] = quote.Price
	}
	if len(prices) == 0 {
		return
	}

	closed, err := m.engine.CheckTriggers(ctx, prices)
	if err != nil {
		m.log.Error("trigger check failed", "error", err)
		return
	}
	for _, t := range closed {
		m.announce(t)
	}
}

func (m *Monitor) announce(t *models.Trade) {
	title := "Position closed"
	switch t.Status {
	case models.StatusStoppedOut:
		title = "Stop-loss hit"
	case models.StatusTargetHit:
		title = "Target reached"
	}

	msg := fmt.Sprintf("%s %d %s @ %s", t.Action, t.Quantity, t.Symbol, t.ExitPrice)
	if t.PnLDollars != nil {
		msg += fmt.Sprintf(" (P&L %s)", t.PnLDollars)
	}
	if err := m.currentNotifier().Notify(title, msg); err != nil {
		m.log.Warn("notification failed", "error", err)
	}
}
