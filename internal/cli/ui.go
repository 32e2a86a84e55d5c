package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"stock-advisors/internal/marketdata"
	"stock-advisors/internal/models"
	"stock-advisors/internal/performance"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Background(lipgloss.Color("#1F2937")).
		Padding(0, 1).
		MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(1, 2).
		Width(80)

	gainStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	lossStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)
)

// DisplayError shows an error message
func DisplayError(err error) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("❌ Error: %s", err.Error())))
}

// DisplayInfo shows an info message
func DisplayInfo(message string) {
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Render("ℹ️  " + message))
}

// DisplaySuccess shows a success message
func DisplaySuccess(message string) {
	fmt.Println(lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Render("✅ " + message))
}

// DisplayQuote shows a quote card
func DisplayQuote(q *marketdata.Quote) {
	var content strings.Builder
	content.WriteString(fmt.Sprintf("📈 %s\n\n", q.Symbol))
	content.WriteString(fmt.Sprintf("Price:       $%s\n", q.Price))
	content.WriteString(fmt.Sprintf("Change:      %s (%.2f%%)\n", signedMoney(q.Change), q.ChangePercent))
	content.WriteString(fmt.Sprintf("Volume:      %d\n", q.Volume))
	content.WriteString(fmt.Sprintf("Trading day: %s", q.LatestTradingDay))
	fmt.Println(panelStyle.Render(content.String()))
}

// DisplayPortfolio shows the portfolio summary and open positions
func DisplayPortfolio(state models.PortfolioState, prices map[string]decimal.Decimal) {
	var content strings.Builder
	content.WriteString("💼 Portfolio\n\n")
	content.WriteString(fmt.Sprintf("Total value:      $%s\n", state.TotalValue.StringFixed(2)))
	content.WriteString(fmt.Sprintf("Virtual cash:     $%s\n", state.VirtualCash.StringFixed(2)))
	content.WriteString(fmt.Sprintf("Starting capital: $%s\n", state.StartingCapital.StringFixed(2)))
	content.WriteString(fmt.Sprintf("Overall P&L:      %s\n\n", signedMoney(state.PnL)))

	if len(state.Positions) == 0 {
		content.WriteString(mutedStyle.Render("No open positions"))
		fmt.Println(panelStyle.Render(content.String()))
		return
	}

	content.WriteString(fmt.Sprintf("%-8s %-6s %6s %10s %10s %12s\n",
		"SYMBOL", "SIDE", "QTY", "ENTRY", "CURRENT", "UNREALIZED"))
	for _, t := range state.Positions {
		current := t.EntryPrice
		if p, ok := prices[t.Symbol]; ok {
			current = p
		}
		qty := decimal.NewFromInt(t.Quantity)
		var unrealized decimal.Decimal
		if t.Action.IsLong() {
			unrealized = current.Sub(t.EntryPrice).Mul(qty)
		} else {
			unrealized = t.EntryPrice.Sub(current).Mul(qty)
		}
		side := "LONG"
		if t.Action.IsShort() {
			side = "SHORT"
		}
		line := fmt.Sprintf("%-8s %-6s %6d %10s %10s %12s",
			t.Symbol, side, t.Quantity,
			t.EntryPrice.StringFixed(2), current.StringFixed(2),
			unrealized.StringFixed(2))
		content.WriteString(pnlStyle(unrealized.Sign()).Render(line) + "\n")
	}
	fmt.Println(panelStyle.Render(strings.TrimRight(content.String(), "\n")))
}

// DisplayTrade shows a single trade
func DisplayTrade(t *models.Trade) {
	var content strings.Builder
	side := "LONG"
	if t.Action.IsShort() {
		side = "SHORT"
	}
	content.WriteString(fmt.Sprintf("🧾 Trade #%d — %s %s\n\n", t.ID, side, t.Symbol))
	content.WriteString(fmt.Sprintf("Quantity:  %d @ $%s\n", t.Quantity, t.EntryPrice))
	content.WriteString(fmt.Sprintf("Opened:    %s\n", t.EntryDate.Format("2006-01-02 15:04")))
	if t.StopLoss != nil {
		content.WriteString(fmt.Sprintf("Stop:      $%s\n", t.StopLoss))
	}
	if t.TakeProfit != nil {
		content.WriteString(fmt.Sprintf("Target:    $%s\n", t.TakeProfit))
	}
	content.WriteString(fmt.Sprintf("Status:    %s\n", t.Status))
	if t.ExitPrice != nil {
		content.WriteString(fmt.Sprintf("Exit:      $%s\n", t.ExitPrice))
	}
	if t.PnLDollars != nil {
		content.WriteString(fmt.Sprintf("P&L:       %s", signedMoney(*t.PnLDollars)))
	}
	if t.RecommendedBy != "" {
		content.WriteString(fmt.Sprintf("\nAdvisor:   %s", t.RecommendedBy))
	}
	fmt.Println(panelStyle.Render(strings.TrimRight(content.String(), "\n")))
}

// DisplayLeaderboard shows the agents ranked by composite score
func DisplayLeaderboard(board []performance.AgentStats) {
	var content strings.Builder
	content.WriteString("🏆 Advisor Leaderboard\n\n")
	if len(board) == 0 {
		content.WriteString(mutedStyle.Render("No resolved recommendations yet"))
		fmt.Println(panelStyle.Render(content.String()))
		return
	}

	content.WriteString(fmt.Sprintf("%-4s %-16s %6s %8s %8s %8s %8s\n",
		"#", "ADVISOR", "TRADES", "WIN %", "AVG RET", "SHARPE", "SCORE"))
	for i, s := range board {
		medal := fmt.Sprintf("%d.", i+1)
		switch i {
		case 0:
			medal = "🥇"
		case 1:
			medal = "🥈"
		case 2:
			medal = "🥉"
		}
		content.WriteString(fmt.Sprintf("%-4s %-16s %6d %7.1f%% %7.2f%% %8.2f %8.1f\n",
			medal, truncateString(s.AgentID, 16), s.Resolved,
			s.WinRate, s.MeanReturn, s.Sharpe, s.CompositeScore))
	}
	fmt.Println(panelStyle.Render(strings.TrimRight(content.String(), "\n")))
}

// DisplayAgentStats shows one advisor's full statistics
func DisplayAgentStats(s performance.AgentStats) {
	var content strings.Builder
	content.WriteString(fmt.Sprintf("📊 %s\n\n", s.AgentID))
	content.WriteString(fmt.Sprintf("Recommendations: %d (%d resolved, %d pending)\n", s.Total, s.Resolved, s.Pending))
	content.WriteString(fmt.Sprintf("Record:          %d wins / %d losses / %d breakeven\n", s.Wins, s.Losses, s.Breakeven))
	content.WriteString(fmt.Sprintf("Win rate:        %.1f%%\n", s.WinRate))
	content.WriteString(fmt.Sprintf("Mean return:     %.2f%%\n", s.MeanReturn))
	content.WriteString(fmt.Sprintf("Best / worst:    %.2f%% / %.2f%%\n", s.BestReturn, s.WorstReturn))
	content.WriteString(fmt.Sprintf("Sharpe:          %.2f\n", s.Sharpe))
	content.WriteString(fmt.Sprintf("Profit factor:   %.2f\n", s.ProfitFactor))
	content.WriteString(fmt.Sprintf("Avg days held:   %.1f\n", s.AvgDaysHeld))
	content.WriteString(fmt.Sprintf("Composite score: %.1f", s.CompositeScore))
	fmt.Println(panelStyle.Render(content.String()))
}

// DisplaySearchResults shows symbol search matches
func DisplaySearchResults(matches []marketdata.SymbolMatch) {
	var content strings.Builder
	content.WriteString("🔍 Matches\n\n")
	if len(matches) == 0 {
		content.WriteString(mutedStyle.Render("No symbols found"))
		fmt.Println(panelStyle.Render(content.String()))
		return
	}
	for _, m := range matches {
		content.WriteString(fmt.Sprintf("%-10s %-40s %s/%s\n",
			m.Symbol, truncateString(m.Name, 40), m.Region, m.Currency))
	}
	fmt.Println(panelStyle.Render(strings.TrimRight(content.String(), "\n")))
}

// DisplayBundle shows a snapshot panel per symbol
func DisplayBundle(bundle marketdata.Bundle, symbols []string, reqs []marketdata.Requirement) {
	for _, symbol := range symbols {
		symbol = marketdata.NormalizeSymbol(symbol)
		var content strings.Builder
		content.WriteString(fmt.Sprintf("📊 %s\n", symbol))

		for _, req := range reqs {
			data, ok := bundle.Get(symbol, req)
			if !ok {
				content.WriteString(mutedStyle.Render(fmt.Sprintf("\n%s: unavailable", req)) + "\n")
				continue
			}
			content.WriteString(renderRequirement(req, data))
		}
		fmt.Println(panelStyle.Render(strings.TrimRight(content.String(), "\n")))
	}
}

func renderRequirement(req marketdata.Requirement, data any) string {
	var b strings.Builder
	switch v := data.(type) {
	case *marketdata.Quote:
		b.WriteString(fmt.Sprintf("\nQuote: $%s (%+.2f%%), volume %d\n", v.Price, v.ChangePercent, v.Volume))
	case []marketdata.Bar:
		if len(v) > 0 {
			latest := v[0]
			b.WriteString(fmt.Sprintf("\nDaily bars: %d days, last close $%s on %s\n",
				len(v), latest.Close, latest.Date.Format("2006-01-02")))
		}
	case *marketdata.CompanyOverview:
		b.WriteString(fmt.Sprintf("\n%s — %s / %s\n", v.Name, v.Sector, v.Industry))
		b.WriteString(fmt.Sprintf("Market cap %s | P/E %s | EPS %s | Beta %s\n",
			v.MarketCap, v.PERatio, v.EPS, v.Beta))
	case *marketdata.IndicatorSeries:
		if len(v.Points) > 0 {
			b.WriteString(fmt.Sprintf("\n%s(%s): %.2f as of %s\n",
				v.Indicator, v.Interval, v.Points[0].Value, v.Points[0].Date.Format("2006-01-02")))
		}
	case []marketdata.NewsItem:
		b.WriteString("\nNews:\n")
		limit := len(v)
		if limit > 3 {
			limit = 3
		}
		for _, item := range v[:limit] {
			b.WriteString(fmt.Sprintf("  [%s %.2f] %s (%s)\n",
				item.SentimentLabel, item.SentimentScore, truncateString(item.Title, 50), item.Source))
		}
	case marketdata.SectorPerformance:
		b.WriteString("\nSectors:\n")
		for name, change := range v {
			b.WriteString(fmt.Sprintf("  %-28s %s\n", truncateString(name, 28), change))
		}
	default:
		b.WriteString(fmt.Sprintf("\n%s: %v\n", req, data))
	}
	return b.String()
}

func pnlStyle(sign int) lipgloss.Style {
	switch {
	case sign > 0:
		return gainStyle
	case sign < 0:
		return lossStyle
	default:
		return mutedStyle
	}
}

func signedMoney(v decimal.Decimal) string {
	s := "$" + v.StringFixed(2)
	if v.Sign() >= 0 {
		s = "+" + s
	} else {
		s = "-$" + v.Abs().StringFixed(2)
	}
	return pnlStyle(v.Sign()).Render(s)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
