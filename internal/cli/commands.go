// Package cli wires the advisor commands: quotes, paper trades, the
// position monitor and the advisor leaderboard.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stock-advisors/internal/config"
	"stock-advisors/internal/marketdata"
	"stock-advisors/internal/models"
	"stock-advisors/internal/monitor"
	"stock-advisors/internal/notify"
	"stock-advisors/internal/performance"
	"stock-advisors/internal/store"
	"stock-advisors/internal/trading"
)

const version = "1.0.0"

// App bundles the long-lived pieces the commands share.
type App struct {
	manager *config.Manager
	cfg     config.Config
	store   store.Store
	engine  *trading.Engine
	client  *marketdata.Client
}

func newApp(ctx context.Context, configPath string) (*App, error) {
	manager, err := config.NewManager(config.WithConfigPath(configPath))
	if err != nil {
		return nil, err
	}
	cfg := manager.Get()
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	var st store.Store
	st, err = store.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Warn("sqlite unavailable, using in-memory store", "path", cfg.DBPath, "error", err)
		st = store.NewMemoryStore()
	}

	engine, err := trading.NewEngine(ctx, st, decimal.NewFromFloat(cfg.StartingCapital), cfg.MaxPositionPct)
	if err != nil {
		st.Close()
		return nil, err
	}

	var opts []marketdata.Option
	if cfg.BaseURL != "" {
		opts = append(opts, marketdata.WithBaseURL(cfg.BaseURL))
	}
	client := marketdata.NewClient(cfg.APIKey, cfg.Limiter(), opts...)

	return &App{
		manager: manager,
		cfg:     cfg,
		store:   st,
		engine:  engine,
		client:  client,
	}, nil
}

func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", "error", err)
	}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "advisor",
		Short: "Stock Advisors - paper trading with a tracked advisor panel",
		Long: `Stock Advisors runs a simulated portfolio against live market data.
Recommendations open paper positions, a monitor fires stop-loss and
take-profit exits, and every advisor's track record is scored over time.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path")

	withApp := func(run func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			app, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer app.Close()
			return run(ctx, app, cmd, args)
		}
	}

	rootCmd.AddCommand(newQuoteCmd(withApp))
	rootCmd.AddCommand(newAnalyzeCmd(withApp))
	rootCmd.AddCommand(newSearchCmd(withApp))
	rootCmd.AddCommand(newTradeCmd(withApp))
	rootCmd.AddCommand(newPositionsCmd(withApp))
	rootCmd.AddCommand(newCloseCmd(withApp))
	rootCmd.AddCommand(newMonitorCmd(withApp))
	rootCmd.AddCommand(newLeaderboardCmd(withApp))
	rootCmd.AddCommand(newStatsCmd(withApp))
	rootCmd.AddCommand(newConfigCmd(&configPath))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

type appRunner func(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error

func newQuoteCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "quote [SYMBOL]",
		Short: "Show the latest quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			quote, err := app.client.Quote(ctx, args[0])
			if err != nil {
				return err
			}
			DisplayQuote(quote)
			return nil
		}),
	}
}

func newAnalyzeCmd(withApp appRunner) *cobra.Command {
	var requirements []string
	cmd := &cobra.Command{
		Use:   "analyze [SYMBOL...]",
		Short: "Fetch a market snapshot for one or more symbols",
		Long: `Fetch quotes, fundamentals, indicators, news and sector performance
in one batch. Failed pieces are omitted rather than failing the snapshot.
Example: advisor analyze AAPL MSFT --data=quote,news`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			reqs := make([]marketdata.Requirement, 0, len(requirements))
			for _, r := range requirements {
				reqs = append(reqs, marketdata.Requirement(r))
			}
			bundle := app.client.FetchBundle(ctx, reqs, args)
			DisplayBundle(bundle, args, reqs)
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&requirements, "data", []string{
		string(marketdata.ReqQuote),
		string(marketdata.ReqFundamentals),
		string(marketdata.ReqIndicators),
		string(marketdata.ReqNews),
		string(marketdata.ReqSector),
	}, "Data kinds to fetch: quote, daily_series, fundamentals, indicators, news, sector")
	return cmd
}

func newSearchCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search for ticker symbols",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			matches, err := app.client.SearchSymbols(ctx, args[0])
			if err != nil {
				return err
			}
			DisplaySearchResults(matches)
			return nil
		}),
	}
}

func newTradeCmd(withApp appRunner) *cobra.Command {
	var (
		action     string
		confidence float64
		target     string
		stop       string
		advisor    string
		rationale  string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "trade [SYMBOL]",
		Short: "Open a paper position",
		Long: `Open a simulated position at the current market price.
Example: advisor trade AAPL --action=BUY --confidence=80 --stop=140 --target=175`,
		Args: cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			var symbol string
			var err error
			if len(args) == 1 {
				symbol = args[0]
			} else {
				if symbol, err = PromptForSymbol(); err != nil {
					return err
				}
			}

			tradeAction := models.TradeAction(action)
			if action == "" {
				if tradeAction, err = PromptForAction(); err != nil {
					return err
				}
			}
			if !tradeAction.Tradable() {
				return fmt.Errorf("action %s does not produce a trade", tradeAction)
			}

			quote, err := app.client.Quote(ctx, symbol)
			if err != nil {
				return err
			}

			rec := models.Recommendation{
				Symbol:      marketdata.NormalizeSymbol(symbol),
				Action:      tradeAction,
				Confidence:  confidence,
				Rationale:   rationale,
				QuotedPrice: &quote.Price,
			}
			if target != "" {
				price, err := decimal.NewFromString(target)
				if err != nil {
					return fmt.Errorf("invalid target price %q: %w", target, err)
				}
				rec.TargetPrice = &price
			}
			if stop != "" {
				price, err := decimal.NewFromString(stop)
				if err != nil {
					return fmt.Errorf("invalid stop price %q: %w", stop, err)
				}
				rec.StopLoss = &price
			}

			if !yes {
				quantity, err := trading.PositionSize(quote.Price, rec.StopLoss,
					app.engine.Portfolio(nil).TotalValue, app.engine.Portfolio(nil).VirtualCash,
					app.cfg.MaxPositionPct, confidence)
				if err != nil {
					return err
				}
				ok, err := ConfirmTrade(tradeAction, quantity, rec.Symbol, quote.Price.String())
				if err != nil {
					return err
				}
				if !ok {
					DisplayInfo("Trade cancelled")
					return nil
				}
			}

			trade, err := app.engine.Execute(ctx, rec, advisor, "")
			if err != nil {
				return err
			}
			DisplaySuccess(fmt.Sprintf("Opened %s %d %s @ $%s", trade.Action, trade.Quantity, trade.Symbol, trade.EntryPrice))
			DisplayTrade(trade)
			return nil
		}),
	}

	cmd.Flags().StringVar(&action, "action", "", "Trade action: BUY, SELL, STRONG_BUY or STRONG_SELL")
	cmd.Flags().Float64Var(&confidence, "confidence", trading.DefaultConfidence, "Conviction from 0 to 100")
	cmd.Flags().StringVar(&target, "target", "", "Take-profit price")
	cmd.Flags().StringVar(&stop, "stop", "", "Stop-loss price")
	cmd.Flags().StringVar(&advisor, "advisor", "manual", "Advisor credited with the recommendation")
	cmd.Flags().StringVar(&rationale, "rationale", "", "Free-form note stored with the trade")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newPositionsCmd(withApp appRunner) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show the portfolio and open positions",
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			prices := map[string]decimal.Decimal{}
			if live {
				for _, symbol := range app.engine.OpenSymbols() {
					quote, err := app.client.Quote(ctx, symbol)
					if err != nil {
						slog.Warn("quote unavailable", "symbol", symbol, "error", err)
						continue
					}
					prices[symbol] = quote.Price
				}
			}
			DisplayPortfolio(app.engine.Portfolio(prices), prices)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&live, "live", false, "Fetch current quotes for open positions")
	return cmd
}

func newCloseCmd(withApp appRunner) *cobra.Command {
	var priceFlag string
	cmd := &cobra.Command{
		Use:   "close [TRADE_ID]",
		Short: "Close an open position",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid trade id %q", args[0])
			}

			var exit decimal.Decimal
			if priceFlag != "" {
				if exit, err = decimal.NewFromString(priceFlag); err != nil {
					return fmt.Errorf("invalid price %q: %w", priceFlag, err)
				}
			} else {
				trade, err := app.store.TradeByID(ctx, id)
				if err != nil {
					return err
				}
				quote, err := app.client.Quote(ctx, trade.Symbol)
				if err != nil {
					return err
				}
				exit = quote.Price
			}

			closed, err := app.engine.CloseWithOutcome(ctx, id, exit, time.Now().UTC(), models.StatusClosed)
			if err != nil {
				return err
			}
			DisplaySuccess(fmt.Sprintf("Closed trade #%d @ $%s", closed.ID, exit))
			DisplayTrade(closed)
			return nil
		}),
	}
	cmd.Flags().StringVar(&priceFlag, "price", "", "Exit price (current quote if not provided)")
	return cmd
}

func newMonitorCmd(withApp appRunner) *cobra.Command {
	var once bool
	var headless bool
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch open positions for stop-loss and take-profit triggers",
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			interval := time.Duration(app.cfg.MonitorIntervalSec) * time.Second
			if once {
				interval = 0
			}

			notifier := notify.ForConfig(app.cfg.NotificationsEnabled, headless)
			mon := monitor.New(app.engine, app.client, notifier, interval)

			if interval > 0 {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				// Config edits take effect on the running loop.
				if err := app.manager.Watch(ctx, func(cfg config.Config) {
					mon.SetInterval(time.Duration(cfg.MonitorIntervalSec) * time.Second)
					mon.SetNotifier(notify.ForConfig(cfg.NotificationsEnabled, headless))
					slog.Info("config reloaded",
						"interval_sec", cfg.MonitorIntervalSec,
						"notifications", cfg.NotificationsEnabled)
				}); err != nil {
					slog.Warn("config watch unavailable", "error", err)
				}

				fmt.Println(titleStyle.Render(fmt.Sprintf("👁  Monitoring every %s — Ctrl-C to stop", interval)))
				mon.Start(ctx)
				return nil
			}

			mon.Start(ctx)
			DisplaySuccess("Sweep complete")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	cmd.Flags().BoolVar(&headless, "headless", false, "Log notifications instead of sending desktop alerts")
	return cmd
}

func newLeaderboardCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank advisors by their track record",
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			board, err := performance.Leaderboard(ctx, app.store)
			if err != nil {
				return err
			}
			DisplayLeaderboard(board)
			return nil
		}),
	}
}

func newStatsCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [ADVISOR]",
		Short: "Show one advisor's full statistics",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			stats, err := performance.StatsFor(ctx, app.store, args[0])
			if err != nil {
				return err
			}
			DisplayAgentStats(stats)
			return nil
		}),
	}
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager(config.WithConfigPath(*configPath))
			if err != nil {
				return err
			}
			cfg := manager.Get()
			fmt.Printf("Config file:           %s\n", manager.Path())
			fmt.Printf("Data dir:              %s\n", cfg.DataDir)
			fmt.Printf("Database:              %s\n", cfg.DBPath)
			fmt.Printf("Starting capital:      %.2f\n", cfg.StartingCapital)
			fmt.Printf("Max position pct:      %.2f\n", cfg.MaxPositionPct)
			fmt.Printf("Rate limit tier:       %s\n", cfg.RateLimitTier)
			fmt.Printf("Monitor interval (s):  %d\n", cfg.MonitorIntervalSec)
			fmt.Printf("Notifications:         %t\n", cfg.NotificationsEnabled)
			fmt.Printf("API key set:           %t\n", cfg.APIKey != "")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set [KEY] [VALUE]",
		Short: "Update one configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager(config.WithConfigPath(*configPath))
			if err != nil {
				return err
			}
			cfg := manager.Get()
			if err := applyConfigKey(&cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := manager.Update(cfg); err != nil {
				return err
			}
			DisplaySuccess(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	})

	return configCmd
}

func applyConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "starting_capital":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.StartingCapital = v
	case "max_position_pct":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.MaxPositionPct = v
	case "rate_limit_tier":
		cfg.RateLimitTier = value
	case "monitor_interval_sec":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.MonitorIntervalSec = v
	case "notifications_enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.NotificationsEnabled = v
	case "debug":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.Debug = v
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Stock Advisors v%s\n", version)
			fmt.Println("Paper trading with a tracked advisor panel")
		},
	}
}
